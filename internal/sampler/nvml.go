package sampler

import (
	"context"
	"sync"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	milliWattsToWatts     = 1000
	defaultNominalVoltage = 12.0
)

// PowerSource abstracts the NVML calls used for sampling.
type PowerSource interface {
	Initialize() error
	Shutdown() error
	// PowerUsage returns the board power draw in milliwatts.
	PowerUsage(index int) (uint32, error)
}

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

type nvmlWrapper struct{}

func (nvmlWrapper) Initialize() error {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return newNVMLError(ret)
	}
	return nil
}

func (nvmlWrapper) Shutdown() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return newNVMLError(ret)
	}
	return nil
}

func (nvmlWrapper) PowerUsage(index int) (uint32, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return 0, newNVMLError(ret)
	}

	usage, ret := dev.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return 0, newNVMLError(ret)
	}

	return usage, nil
}

// NVML samples the power draw of NVIDIA GPUs. The library is initialised
// on first use and stays loaded until Close.
type NVML struct {
	opts        options
	source      PowerSource
	logger      logger.Logger
	mu          sync.Mutex
	initialized bool
}

func NewNVML(log logger.Logger, opts ...Option) *NVML {
	return &NVML{
		opts:   buildOptions(opts),
		source: nvmlWrapper{},
		logger: log,
	}
}

// WithSource replaces the NVML bindings, for tests.
func (n *NVML) WithSource(src PowerSource) *NVML {
	n.source = src
	return n
}

func (n *NVML) ensureInit() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initialized {
		return nil
	}

	if err := n.source.Initialize(); err != nil {
		return errors.New().Wrap(ErrNVMLInit, err)
	}
	n.initialized = true
	n.logger.Info().Msg("NVML initialized")

	return nil
}

func (n *NVML) Sample(ctx context.Context, d device.Device) (telemetry.Reading, error) {
	errFactory := errors.New()
	p := params{d: d}

	index, err := p.int("index", 0)
	if err != nil {
		return telemetry.Reading{}, err
	}
	if index < 0 {
		return telemetry.Reading{}, p.invalid("index", "must not be negative")
	}

	voltage, err := p.float("nominal_voltage", defaultNominalVoltage)
	if err != nil {
		return telemetry.Reading{}, err
	}
	if voltage <= 0 {
		return telemetry.Reading{}, p.invalid("nominal_voltage", "must be positive")
	}

	if err := ctx.Err(); err != nil {
		return telemetry.Reading{}, errFactory.Wrap(ErrTimeout, err)
	}

	if err := n.ensureInit(); err != nil {
		return telemetry.Reading{}, err
	}

	mw, err := n.source.PowerUsage(index)
	if err != nil {
		return telemetry.Reading{}, errFactory.Wrap(ErrNVMLRead, err)
	}

	power := float64(mw) / milliWattsToWatts
	current := round(power/voltage, 3)

	return newReading(n.opts, d, n.opts.now(), power, current, voltage, power > 0), nil
}

func (n *NVML) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return nil
	}

	if err := n.source.Shutdown(); err != nil {
		return errors.New().Wrap(ErrNVMLShutdown, err)
	}
	n.initialized = false

	return nil
}
