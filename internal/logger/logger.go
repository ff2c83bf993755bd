package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"github.com/rs/zerolog"
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

type zeroLogger struct {
	log zerolog.Logger
}

// Options controls how New renders log lines.
type Options struct {
	Level string
	// JSON selects structured output. Console output drops timestamps
	// when running under a service manager.
	JSON bool
}

// New creates a Logger writing to w.
func New(w io.Writer, opts Options) (Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = w
	if !opts.JSON {
		console := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
		if IsService() {
			console.TimeFormat = ""
			console.FormatTimestamp = func(_ any) string {
				return ""
			}
		}
		out = console
	}

	return &zeroLogger{
		log: zerolog.New(out).Level(level).With().Timestamp().Logger(),
	}, nil
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zeroLogger{log: zerolog.Nop()}
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}

	return lvl, nil
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

func (l *zeroLogger) Debug() *LogEvent {
	return &LogEvent{l.log.Debug()}
}

func (l *zeroLogger) Info() *LogEvent {
	return &LogEvent{l.log.Info()}
}

func (l *zeroLogger) Warn() *LogEvent {
	return &LogEvent{l.log.Warn()}
}

func (l *zeroLogger) Error() *LogEvent {
	return &LogEvent{l.log.Error()}
}

func (l *zeroLogger) ErrorWithCode(err error) *LogEvent {
	return &LogEvent{withCode(l.log.Error(), err)}
}

func (l *zeroLogger) WarnWithCode(err error) *LogEvent {
	return &LogEvent{withCode(l.log.Warn(), err)}
}

func (l *zeroLogger) With(component string) Logger {
	return &zeroLogger{log: l.log.With().Str("component", component).Logger()}
}

func withCode(ev *zerolog.Event, err error) *zerolog.Event {
	if err == nil {
		return ev
	}

	ev = ev.Str("error_code", string(errors.CodeOf(err))).
		Str("error_message", err.Error())
	if cause := errors.Unwrap(err); cause != nil {
		ev = ev.AnErr("error", cause)
	}

	return ev
}
