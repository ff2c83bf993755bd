// Package sampler produces readings from devices.
package sampler

import (
	"context"
	"time"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
	"github.com/google/uuid"
)

// Sampler produces one reading for a device per call.
type Sampler interface {
	Sample(ctx context.Context, d device.Device) (telemetry.Reading, error)
}

// Rand is the random source used by Synthetic. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

type options struct {
	rand  Rand
	now   func() time.Time
	newID func() string
}

// Option customises a sampler.
type Option func(*options)

// WithRand replaces the random source.
func WithRand(r Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDs replaces the reading id generator.
func WithIDs(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// newReading fills the derived fields shared by every sampler.
func newReading(o options, d device.Device, at time.Time, power, current, voltage float64, state bool) telemetry.Reading {
	return telemetry.Reading{
		ID:        o.newID(),
		DeviceID:  d.ID,
		Timestamp: telemetry.FormatTimestamp(at),
		Power:     power,
		Current:   current,
		Voltage:   voltage,
		Energy:    power / 1000,
		State:     state,
	}
}
