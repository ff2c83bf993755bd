package sampler

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net"
	"time"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"
)

const defaultModbusTimeout = 2 * time.Second

// Register value encodings.
const (
	formatUint32  = "uint32"
	formatFloat32 = "float32"
)

// modbusTarget is the parsed connection of a modbus device.
type modbusTarget struct {
	address string
	slaveID byte
	timeout time.Duration
	ping    bool
	format  string

	power, current, voltage                uint16
	powerScale, currentScale, voltageScale float64
}

// RegisterReader is the subset of modbus.Client used for sampling.
type RegisterReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Dialer opens a modbus session. The returned closer ends it.
type Dialer func(address string, slaveID byte, timeout time.Duration) (RegisterReader, io.Closer, error)

// Pinger reports whether host answered an echo request within timeout.
type Pinger func(ctx context.Context, host string, timeout time.Duration) (bool, error)

// Modbus reads power, current and voltage from holding registers of a
// Modbus TCP energy meter. Each quantity is a pair of big-endian registers.
type Modbus struct {
	opts   options
	dial   Dialer
	ping   Pinger
	logger logger.Logger
}

func NewModbus(log logger.Logger, opts ...Option) *Modbus {
	return &Modbus{
		opts:   buildOptions(opts),
		dial:   dialTCP,
		ping:   icmpPing,
		logger: log,
	}
}

// WithTransport replaces the network layer, for tests.
func (m *Modbus) WithTransport(dial Dialer, ping Pinger) *Modbus {
	if dial != nil {
		m.dial = dial
	}
	if ping != nil {
		m.ping = ping
	}

	return m
}

func parseModbusTarget(d device.Device) (modbusTarget, error) {
	p := params{d: d}
	var (
		t   modbusTarget
		err error
	)

	if t.address, err = p.str("address"); err != nil {
		return t, err
	}
	if _, _, err := net.SplitHostPort(t.address); err != nil {
		return t, p.invalid("address", err.Error())
	}

	slave, err := p.uint16("slave_id", 1, false)
	if err != nil {
		return t, err
	}
	if slave > math.MaxUint8 {
		return t, p.invalid("slave_id", "out of range")
	}
	t.slaveID = byte(slave)

	if t.timeout, err = p.duration("timeout", defaultModbusTimeout); err != nil {
		return t, err
	}
	if t.ping, err = p.bool("ping"); err != nil {
		return t, err
	}

	t.format = d.Connection["format"]
	switch t.format {
	case "":
		t.format = formatUint32
	case formatUint32, formatFloat32:
	default:
		return t, p.invalid("format", "must be uint32 or float32")
	}

	if t.power, err = p.uint16("power_register", 0, true); err != nil {
		return t, err
	}
	if t.current, err = p.uint16("current_register", 0, true); err != nil {
		return t, err
	}
	if t.voltage, err = p.uint16("voltage_register", 0, true); err != nil {
		return t, err
	}

	if t.powerScale, err = p.float("power_scale", 1); err != nil {
		return t, err
	}
	if t.currentScale, err = p.float("current_scale", 1); err != nil {
		return t, err
	}
	if t.voltageScale, err = p.float("voltage_scale", 1); err != nil {
		return t, err
	}

	return t, nil
}

func (m *Modbus) Sample(ctx context.Context, d device.Device) (telemetry.Reading, error) {
	errFactory := errors.New()

	t, err := parseModbusTarget(d)
	if err != nil {
		return telemetry.Reading{}, err
	}

	if err := ctx.Err(); err != nil {
		return telemetry.Reading{}, errFactory.Wrap(ErrTimeout, err)
	}

	if t.ping {
		host, _, _ := net.SplitHostPort(t.address)
		ok, err := m.ping(ctx, host, t.timeout)
		if err != nil || !ok {
			m.logger.Debug().Str("device_id", d.ID).Str("host", host).Err(err).Msg("Ping precheck failed")
			return telemetry.Reading{}, errFactory.WithData(ErrDeviceUnreachable, host)
		}
	}

	client, closer, err := m.dial(t.address, t.slaveID, t.timeout)
	if err != nil {
		return telemetry.Reading{}, classifyNetError(err)
	}
	defer closer.Close()

	read := func(register uint16, scale float64) (float64, error) {
		raw, err := client.ReadHoldingRegisters(register, 2)
		if err != nil {
			return 0, classifyNetError(err)
		}
		if len(raw) != 4 {
			return 0, errFactory.WithData(ErrGenerationFailed, "short register read")
		}

		bits := binary.BigEndian.Uint32(raw)
		if t.format == formatFloat32 {
			return float64(math.Float32frombits(bits)) * scale, nil
		}
		return float64(bits) * scale, nil
	}

	power, err := read(t.power, t.powerScale)
	if err != nil {
		return telemetry.Reading{}, err
	}
	current, err := read(t.current, t.currentScale)
	if err != nil {
		return telemetry.Reading{}, err
	}
	voltage, err := read(t.voltage, t.voltageScale)
	if err != nil {
		return telemetry.Reading{}, err
	}

	return newReading(m.opts, d, m.opts.now(), power, current, voltage, power > 0), nil
}

func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.New().Wrap(ErrTimeout, err)
	}

	return errors.New().Wrap(ErrDeviceUnreachable, err)
}

func dialTCP(address string, slaveID byte, timeout time.Duration) (RegisterReader, io.Closer, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.Timeout = timeout
	handler.SlaveId = slaveID

	if err := handler.Connect(); err != nil {
		handler.Close()
		return nil, nil, err
	}

	return modbus.NewClient(handler), handler, nil
}

func icmpPing(ctx context.Context, host string, timeout time.Duration) (bool, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, err
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return false, err
	}

	return pinger.Statistics().PacketsRecv > 0, nil
}
