// Package collector runs sampling passes over the device registry.
package collector

import (
	"context"
	"time"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/sampler"
	"codeberg.org/mutker/telemetryd/internal/sink"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

const (
	ErrSampleFailed = errors.ErrorCode("collector_sample_failed")
	ErrAppendFailed = errors.ErrorCode("collector_append_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrSampleFailed: "Failed to sample device",
		ErrAppendFailed: "Failed to store reading",
	})
}

// Backfiller generates readings at explicit timestamps.
type Backfiller interface {
	SampleAt(ctx context.Context, d device.Device, at time.Time) (telemetry.Reading, error)
}

// Collector performs sampling passes shared by the scheduler and the API.
type Collector struct {
	registry *device.Registry
	sampler  sampler.Sampler
	store    telemetry.Store
	sink     sink.Sink
	logger   logger.Logger
}

// New builds a collector. A nil sink disables publishing.
func New(registry *device.Registry, s sampler.Sampler, store telemetry.Store, out sink.Sink, log logger.Logger) *Collector {
	if out == nil {
		out = sink.NewFanout()
	}

	return &Collector{
		registry: registry,
		sampler:  s,
		store:    store,
		sink:     out,
		logger:   log,
	}
}

// Collect samples every registry device once, in registry order. A device
// that fails to sample or store is logged and skipped; the returned
// results hold only stored readings.
func (c *Collector) Collect(ctx context.Context) ([]telemetry.Reading, []error) {
	errFactory := errors.New()

	results := make([]telemetry.Reading, 0, c.registry.Len())
	var failures []error

	for _, d := range c.registry.List() {
		r, err := c.sampler.Sample(ctx, d)
		if err != nil {
			err = errFactory.Wrap(ErrSampleFailed, err)
			c.logger.ErrorWithCode(err).Str("device_id", d.ID).Msg("Sampling failed, skipping device")
			failures = append(failures, err)
			continue
		}

		if err := c.store.Append(ctx, r); err != nil {
			err = errFactory.Wrap(ErrAppendFailed, err)
			c.logger.ErrorWithCode(err).Str("device_id", d.ID).Msg("Storing reading failed, skipping device")
			failures = append(failures, err)
			continue
		}

		results = append(results, r)
		c.publish(ctx, r)
	}

	c.logger.Debug().
		Int("stored", len(results)).
		Int("failed", len(failures)).
		Msg("Collection pass finished")

	return results, failures
}

func (c *Collector) publish(ctx context.Context, r telemetry.Reading) {
	if err := c.sink.Publish(ctx, r); err != nil {
		c.logger.WarnWithCode(err).Str("device_id", r.DeviceID).Msg("Failed to publish reading")
	}
}

// CurrentOrBootstrap returns the latest reading per device. An empty store
// triggers one collection pass whose results are returned instead.
func (c *Collector) CurrentOrBootstrap(ctx context.Context) ([]telemetry.Reading, error) {
	latest, err := c.store.LatestPerDevice(ctx)
	if err != nil {
		return nil, err
	}
	if len(latest) > 0 {
		return latest, nil
	}

	c.logger.Info().Msg("No readings stored yet, collecting")
	results, failures := c.Collect(ctx)
	if len(results) == 0 && len(failures) > 0 {
		return nil, errors.Join(failures...)
	}

	return results, nil
}

// Seed backfills points readings per synthetic device, spacing apart and
// ending at now, when the store holds no readings. Devices read over a real
// protocol get no invented history. It reports how many readings were stored.
func (c *Collector) Seed(ctx context.Context, gen Backfiller, now time.Time, points int, spacing time.Duration) (int, error) {
	errFactory := errors.New()

	empty, err := c.store.IsEmpty(ctx)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrSeedFailed, err)
	}
	if !empty {
		c.logger.Debug().Msg("Store already has readings, skipping seed")
		return 0, nil
	}

	stored := 0
	for _, d := range c.registry.List() {
		if d.Type != device.TypeTuya && d.Type != device.TypeSynthetic {
			continue
		}
		for i := points - 1; i >= 0; i-- {
			at := now.Add(-time.Duration(i) * spacing)

			r, err := gen.SampleAt(ctx, d, at)
			if err != nil {
				return stored, errFactory.Wrap(errors.ErrSeedFailed, err)
			}
			if err := c.store.Append(ctx, r); err != nil {
				return stored, errFactory.Wrap(errors.ErrSeedFailed, err)
			}
			stored++
		}
	}

	c.logger.Info().Int("readings", stored).Msg("Seeded initial readings")

	return stored, nil
}
