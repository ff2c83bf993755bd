package sink

import (
	"context"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

// Fanout publishes to every registered sink. An empty Fanout is a no-op.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add registers another sink. Not safe to call once publishing started.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish delivers r to every sink and joins their errors.
func (f *Fanout) Publish(ctx context.Context, r telemetry.Reading) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// New connects the enabled sinks in cfg. Disabled sinks are not
// constructed; with none enabled the result is an empty Fanout.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Fanout, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fanout := NewFanout()

	if cfg.MQTT.Enabled {
		m, err := NewMQTT(cfg.MQTT, log.With("mqtt"))
		if err != nil {
			return nil, err
		}
		fanout.Add(m)
	}

	if cfg.Influx.Enabled {
		i, err := NewInflux(ctx, cfg.Influx, log.With("influxdb"))
		if err != nil {
			if cerr := fanout.Close(); cerr != nil {
				log.WarnWithCode(cerr).Msg("Failed to close sinks")
			}
			return nil, errFactory.Wrap(ErrConnectFailed, err)
		}
		fanout.Add(i)
	}

	log.Debug().Int("sinks", fanout.Len()).Msg("Reading sinks initialized")

	return fanout, nil
}
