package logger

// Logger defines the interface for logging operations.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	// ErrorWithCode logs at error level and attaches the error_code of the
	// outermost coded error in err's chain.
	ErrorWithCode(err error) *LogEvent
	WarnWithCode(err error) *LogEvent
	// With returns a child logger tagged with the given component name.
	With(component string) Logger
}
