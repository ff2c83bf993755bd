package sampler

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

// Synthetic value ranges, matching a typical smart plug under load.
const (
	minPower, maxPower     = 80.0, 250.0
	minCurrent, maxCurrent = 0.35, 1.1
	minVoltage, maxVoltage = 220.0, 240.0
	onProbability          = 0.8
)

// Synthetic generates plausible random readings without touching the device.
type Synthetic struct {
	opts options
	mu   sync.Mutex
}

func NewSynthetic(opts ...Option) *Synthetic {
	o := buildOptions(opts)
	if o.rand == nil {
		seed := uint64(time.Now().UnixNano())
		o.rand = rand.New(rand.NewPCG(seed, seed>>1))
	}

	return &Synthetic{opts: o}
}

func (s *Synthetic) Sample(ctx context.Context, d device.Device) (telemetry.Reading, error) {
	return s.SampleAt(ctx, d, s.opts.now())
}

// SampleAt generates a reading stamped with at instead of the clock.
func (s *Synthetic) SampleAt(ctx context.Context, d device.Device, at time.Time) (telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Reading{}, errors.New().Wrap(ErrGenerationFailed, err)
	}

	s.mu.Lock()
	power := round(s.uniform(minPower, maxPower), 1)
	current := round(s.uniform(minCurrent, maxCurrent), 2)
	voltage := round(s.uniform(minVoltage, maxVoltage), 1)
	state := s.opts.rand.Float64() < onProbability
	s.mu.Unlock()

	return newReading(s.opts, d, at, power, current, voltage, state), nil
}

func (s *Synthetic) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.opts.rand.Float64()
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
