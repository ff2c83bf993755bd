package sampler

import (
	"context"
	"io"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

// Dispatcher selects a Sampler by device type.
type Dispatcher struct {
	samplers map[string]Sampler
}

// NewDispatcher returns a dispatcher with the built-in samplers registered:
// tuya and synthetic devices get synthetic readings, modbus and nvml
// devices are read over their protocol.
func NewDispatcher(log logger.Logger, opts ...Option) *Dispatcher {
	synthetic := NewSynthetic(opts...)

	d := &Dispatcher{samplers: make(map[string]Sampler)}
	d.Register(device.TypeTuya, synthetic)
	d.Register(device.TypeSynthetic, synthetic)
	d.Register(device.TypeModbus, NewModbus(log.With("modbus"), opts...))
	d.Register(device.TypeNVML, NewNVML(log.With("nvml"), opts...))

	return d
}

// Register sets the sampler for a device type, replacing any existing one.
func (d *Dispatcher) Register(deviceType string, s Sampler) {
	d.samplers[deviceType] = s
}

func (d *Dispatcher) Sample(ctx context.Context, dev device.Device) (telemetry.Reading, error) {
	s, ok := d.samplers[dev.Type]
	if !ok {
		return telemetry.Reading{}, errors.New().WithData(ErrUnsupportedDevice, struct {
			Device string
			Type   string
		}{Device: dev.ID, Type: dev.Type})
	}

	return s.Sample(ctx, dev)
}

// Close releases samplers holding resources.
func (d *Dispatcher) Close() error {
	var errs []error
	seen := make(map[Sampler]bool)

	for _, s := range d.samplers {
		if seen[s] {
			continue
		}
		seen[s] = true

		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
