// Package settings exposes runtime-tunable values stored alongside readings.
package settings

import (
	"context"
	"strconv"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

const (
	IntervalKey         = "collection_interval"
	IntervalDescription = "Data collection interval in seconds"
	DefaultInterval     = 10
	// MaxInterval is one day.
	MaxInterval = 24 * 60 * 60
)

const (
	ErrInvalidInterval = errors.ErrorCode("settings_invalid_interval")
	ErrCorruptInterval = errors.ErrorCode("settings_corrupt_interval")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidInterval: "Collection interval must be between 1 and 86400 seconds",
		ErrCorruptInterval: "Stored collection interval is not an integer between 1 and 86400",
	})
	errors.RegisterKinds(map[errors.ErrorCode]errors.Kind{
		ErrInvalidInterval: errors.KindValidation,
		ErrCorruptInterval: errors.KindStore,
	})
}

// Interval reads and updates the collection interval in seconds.
type Interval interface {
	Get(ctx context.Context) (int, error)
	Set(ctx context.Context, seconds int) error
}

// StoreInterval keeps the interval as a settings row of a telemetry.Store.
type StoreInterval struct {
	store    telemetry.Store
	fallback int
}

// NewStoreInterval returns an accessor whose Get falls back to fallback
// while the setting has never been written.
func NewStoreInterval(store telemetry.Store, fallback int) *StoreInterval {
	if fallback < 1 {
		fallback = DefaultInterval
	}

	return &StoreInterval{store: store, fallback: fallback}
}

// EnsureDefault writes the fallback value unless a value is already stored.
func (s *StoreInterval) EnsureDefault(ctx context.Context) error {
	_, ok, err := s.store.GetSetting(ctx, IntervalKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	return s.put(ctx, s.fallback)
}

func (s *StoreInterval) Get(ctx context.Context) (int, error) {
	setting, ok, err := s.store.GetSetting(ctx, IntervalKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.fallback, nil
	}

	seconds, err := strconv.Atoi(setting.Value)
	if err != nil || !InRange(seconds) {
		return 0, errors.New().WithData(ErrCorruptInterval, setting.Value)
	}

	return seconds, nil
}

func (s *StoreInterval) Set(ctx context.Context, seconds int) error {
	if !InRange(seconds) {
		return errors.New().WithData(ErrInvalidInterval, seconds)
	}

	return s.put(ctx, seconds)
}

// InRange reports whether seconds is a usable collection interval.
func InRange(seconds int) bool {
	return seconds >= 1 && seconds <= MaxInterval
}

func (s *StoreInterval) put(ctx context.Context, seconds int) error {
	return s.store.PutSetting(ctx, telemetry.Setting{
		Key:         IntervalKey,
		Value:       strconv.Itoa(seconds),
		Description: IntervalDescription,
	})
}
