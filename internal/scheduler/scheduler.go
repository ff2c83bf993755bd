// Package scheduler drives periodic collection passes.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/settings"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

const (
	ErrCycleFailed     = errors.ErrorCode("scheduler_cycle_failed")
	ErrIntervalUnread  = errors.ErrorCode("scheduler_interval_unavailable")
	DefaultBackoff     = 10 * time.Second
	defaultIntervalSec = settings.DefaultInterval
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrCycleFailed:    "Collection cycle failed",
		ErrIntervalUnread: "Could not read collection interval, using last known value",
	})
}

// State of the scheduler loop.
type State int32

const (
	Idle State = iota
	Sampling
)

func (s State) String() string {
	if s == Sampling {
		return "sampling"
	}
	return "idle"
}

// Clock abstracts waiting so tests can drive time.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// RealClock waits on wall time.
func RealClock() Clock {
	return realClock{}
}

// Collector is the collection pass run on each cycle.
type Collector interface {
	Collect(ctx context.Context) ([]telemetry.Reading, []error)
}

type Config struct {
	// Backoff is waited after a cycle that panicked.
	Backoff time.Duration
	// DefaultInterval is used until the interval setting is first read.
	DefaultInterval int
}

func DefaultConfig() Config {
	return Config{
		Backoff:         DefaultBackoff,
		DefaultInterval: defaultIntervalSec,
	}
}

// Scheduler runs one collection pass immediately and then one per
// interval, re-reading the interval after every pass.
type Scheduler struct {
	collector Collector
	interval  settings.Interval
	clock     Clock
	cfg       Config
	logger    logger.Logger

	state    atomic.Int32
	lastGood atomic.Int64
	cycles   atomic.Uint64
}

func New(c Collector, interval settings.Interval, clock Clock, cfg Config, log logger.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.DefaultInterval < 1 {
		cfg.DefaultInterval = defaultIntervalSec
	}

	s := &Scheduler{
		collector: c,
		interval:  interval,
		clock:     clock,
		cfg:       cfg,
		logger:    log,
	}
	s.lastGood.Store(int64(cfg.DefaultInterval))

	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns the number of passes started so far.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Run blocks until ctx is cancelled. Cycle failures never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Msg("Scheduler started")
	defer func() {
		s.state.Store(int32(Idle))
		s.logger.Info().Uint64("cycles", s.Cycles()).Msg("Scheduler stopped")
	}()

	for ctx.Err() == nil {
		wait := s.cycle(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}
	}

	return nil
}

// cycle runs one pass and returns how long to wait before the next.
func (s *Scheduler) cycle(ctx context.Context) (wait time.Duration) {
	s.cycles.Add(1)

	defer func() {
		if p := recover(); p != nil {
			s.state.Store(int32(Idle))
			err := errors.New().WithData(ErrCycleFailed, fmt.Sprint(p))
			s.logger.ErrorWithCode(err).
				Dur("backoff", s.cfg.Backoff).
				Msg("Collection cycle panicked, backing off")
			wait = s.cfg.Backoff
		}
	}()

	s.state.Store(int32(Sampling))
	results, failures := s.collector.Collect(ctx)
	s.state.Store(int32(Idle))

	s.logger.Debug().
		Int("stored", len(results)).
		Int("failed", len(failures)).
		Msg("Collection cycle finished")

	seconds, err := s.interval.Get(ctx)
	if err == nil && !settings.InRange(seconds) {
		err = errors.New().WithData(settings.ErrCorruptInterval, seconds)
	}
	if err != nil {
		seconds = int(s.lastGood.Load())
		s.logger.WarnWithCode(errors.New().Wrap(ErrIntervalUnread, err)).
			Int("interval", seconds).
			Msg("Using last known collection interval")
	} else {
		s.lastGood.Store(int64(seconds))
	}

	return time.Duration(seconds) * time.Second
}
