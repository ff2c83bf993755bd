package sampler_test

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"io"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/sampler"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

// seqRand replays fixed values.
type seqRand struct {
	values []float64
	i      int
}

func (r *seqRand) Float64() float64 {
	v := r.values[r.i%len(r.values)]
	r.i++
	return v
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)

func fixedOpts(r sampler.Rand) []sampler.Option {
	return []sampler.Option{
		sampler.WithRand(r),
		sampler.WithClock(func() time.Time { return fixedNow }),
		sampler.WithIDs(func() string { return "fixed-id" }),
	}
}

var plug = device.Device{ID: "device1", Name: "Smart Plug 1", Type: device.TypeTuya}

func TestSyntheticDeterministic(t *testing.T) {
	s := sampler.NewSynthetic(fixedOpts(&seqRand{values: []float64{0.5, 0, 1, 0.79}})...)

	r, err := s.Sample(context.Background(), plug)
	require.NoError(t, err)

	assert.Equal(t, telemetry.Reading{
		ID:        "fixed-id",
		DeviceID:  "device1",
		Timestamp: "2024-03-01T12:00:00.123456",
		Power:     165,
		Current:   0.35,
		Voltage:   240,
		Energy:    0.165,
		State:     true,
	}, r)
	require.NoError(t, r.Validate())
}

func TestSyntheticStateThreshold(t *testing.T) {
	s := sampler.NewSynthetic(fixedOpts(&seqRand{values: []float64{0.1, 0.1, 0.1, 0.8}})...)

	r, err := s.Sample(context.Background(), plug)
	require.NoError(t, err)
	assert.False(t, r.State, "0.8 is not below the on probability")
}

func TestSyntheticRangesAndInvariants(t *testing.T) {
	s := sampler.NewSynthetic(sampler.WithRand(rand.New(rand.NewPCG(1, 2))))

	on := 0
	const n = 2000
	for range n {
		r, err := s.Sample(context.Background(), plug)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, r.Power, 80.0)
		assert.LessOrEqual(t, r.Power, 250.0)
		assert.GreaterOrEqual(t, r.Current, 0.35)
		assert.LessOrEqual(t, r.Current, 1.1)
		assert.GreaterOrEqual(t, r.Voltage, 220.0)
		assert.LessOrEqual(t, r.Voltage, 240.0)
		assert.InDelta(t, r.Power, math.Round(r.Power*10)/10, 1e-9)
		assert.InDelta(t, r.Current, math.Round(r.Current*100)/100, 1e-9)
		assert.Equal(t, r.Power/1000, r.Energy)
		assert.NoError(t, r.Validate())
		if r.State {
			on++
		}
	}

	assert.InDelta(t, 0.8, float64(on)/n, 0.05)
}

func TestSyntheticSampleAt(t *testing.T) {
	s := sampler.NewSynthetic(fixedOpts(&seqRand{values: []float64{0.5}})...)
	at := time.Date(2023, 1, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600))

	r, err := s.SampleAt(context.Background(), plug, at)
	require.NoError(t, err)
	assert.Equal(t, "2022-12-31T23:00:00.000000", r.Timestamp)
}

func TestSyntheticCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sampler.NewSynthetic().Sample(ctx, plug)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sampler.ErrGenerationFailed))
	assert.Equal(t, errors.KindGenerator, errors.KindOf(err))
}

func TestSyntheticConcurrent(t *testing.T) {
	s := sampler.NewSynthetic()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, err := s.Sample(context.Background(), plug)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

type stubSampler struct {
	calls int
}

func (s *stubSampler) Sample(_ context.Context, d device.Device) (telemetry.Reading, error) {
	s.calls++
	return telemetry.Reading{DeviceID: d.ID}, nil
}

type closingSampler struct {
	stubSampler
	closed int
}

func (c *closingSampler) Close() error {
	c.closed++
	return nil
}

func TestDispatcher(t *testing.T) {
	d := sampler.NewDispatcher(logger.Nop(), fixedOpts(&seqRand{values: []float64{0.5}})...)

	r, err := d.Sample(context.Background(), plug)
	require.NoError(t, err)
	assert.Equal(t, "device1", r.DeviceID)

	_, err = d.Sample(context.Background(), device.Device{ID: "x", Type: "zigbee"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sampler.ErrUnsupportedDevice))

	custom := &closingSampler{}
	d.Register("zigbee", custom)
	d.Register("zigbee-alt", custom)
	_, err = d.Sample(context.Background(), device.Device{ID: "x", Type: "zigbee"})
	require.NoError(t, err)
	assert.Equal(t, 1, custom.calls)

	require.NoError(t, d.Close())
	assert.Equal(t, 1, custom.closed, "shared samplers are closed once")
}

// fakeRegisters serves 32-bit values keyed by start register.
type fakeRegisters struct {
	values map[uint16]uint32
	err    error
}

func (f *fakeRegisters) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if quantity != 2 {
		return nil, stderrors.New("unexpected quantity")
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, f.values[address])
	return out, nil
}

type nopCloser struct{ closed *int }

func (c nopCloser) Close() error {
	*c.closed++
	return nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func meter(conn map[string]string) device.Device {
	base := map[string]string{
		"address":          "10.0.0.5:502",
		"power_register":   "100",
		"current_register": "102",
		"voltage_register": "104",
	}
	for k, v := range conn {
		base[k] = v
	}
	return device.Device{ID: "meter", Type: device.TypeModbus, Connection: base}
}

func TestModbusSample(t *testing.T) {
	regs := &fakeRegisters{values: map[uint16]uint32{100: 1500, 102: 65, 104: 2301}}
	closed := 0
	var gotAddr string
	var gotSlave byte

	m := sampler.NewModbus(logger.Nop(), fixedOpts(nil)...).WithTransport(
		func(addr string, slave byte, _ time.Duration) (sampler.RegisterReader, io.Closer, error) {
			gotAddr, gotSlave = addr, slave
			return regs, nopCloser{&closed}, nil
		},
		func(context.Context, string, time.Duration) (bool, error) {
			t.Fatal("ping not requested")
			return false, nil
		},
	)

	r, err := m.Sample(context.Background(), meter(map[string]string{
		"slave_id":      "7",
		"power_scale":   "0.1",
		"current_scale": "0.01",
		"voltage_scale": "0.1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:502", gotAddr)
	assert.Equal(t, byte(7), gotSlave)
	assert.Equal(t, 1, closed)
	assert.InDelta(t, 150.0, r.Power, 1e-9)
	assert.InDelta(t, 0.65, r.Current, 1e-9)
	assert.InDelta(t, 230.1, r.Voltage, 1e-9)
	assert.Equal(t, r.Power/1000, r.Energy)
	assert.True(t, r.State)
	assert.Equal(t, "fixed-id", r.ID)
}

func TestModbusFloatFormat(t *testing.T) {
	regs := &fakeRegisters{values: map[uint16]uint32{
		100: math.Float32bits(0),
		102: math.Float32bits(0.5),
		104: math.Float32bits(229.5),
	}}
	closed := 0
	m := sampler.NewModbus(logger.Nop()).WithTransport(
		func(string, byte, time.Duration) (sampler.RegisterReader, io.Closer, error) {
			return regs, nopCloser{&closed}, nil
		}, nil)

	r, err := m.Sample(context.Background(), meter(map[string]string{"format": "float32"}))
	require.NoError(t, err)
	assert.Zero(t, r.Power)
	assert.False(t, r.State)
	assert.InDelta(t, 229.5, r.Voltage, 1e-6)
}

func TestModbusErrors(t *testing.T) {
	closed := 0
	okDial := func(regs *fakeRegisters) sampler.Dialer {
		return func(string, byte, time.Duration) (sampler.RegisterReader, io.Closer, error) {
			return regs, nopCloser{&closed}, nil
		}
	}

	tests := []struct {
		name string
		dev  device.Device
		dial sampler.Dialer
		ping sampler.Pinger
		code errors.ErrorCode
	}{
		{
			name: "missing register",
			dev:  device.Device{ID: "m", Type: device.TypeModbus, Connection: map[string]string{"address": "h:502"}},
			dial: okDial(&fakeRegisters{}),
			code: sampler.ErrInvalidConnection,
		},
		{
			name: "bad address",
			dev:  meter(map[string]string{"address": "no-port"}),
			dial: okDial(&fakeRegisters{}),
			code: sampler.ErrInvalidConnection,
		},
		{
			name: "bad format",
			dev:  meter(map[string]string{"format": "int8"}),
			dial: okDial(&fakeRegisters{}),
			code: sampler.ErrInvalidConnection,
		},
		{
			name: "ping without reply",
			dev:  meter(map[string]string{"ping": "true"}),
			dial: okDial(&fakeRegisters{}),
			ping: func(context.Context, string, time.Duration) (bool, error) { return false, nil },
			code: sampler.ErrDeviceUnreachable,
		},
		{
			name: "dial refused",
			dev:  meter(nil),
			dial: func(string, byte, time.Duration) (sampler.RegisterReader, io.Closer, error) {
				return nil, nil, stderrors.New("connection refused")
			},
			code: sampler.ErrDeviceUnreachable,
		},
		{
			name: "read timeout",
			dev:  meter(nil),
			dial: okDial(&fakeRegisters{err: timeoutErr{}}),
			code: sampler.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampler.NewModbus(logger.Nop()).WithTransport(tt.dial, tt.ping)
			_, err := m.Sample(context.Background(), tt.dev)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

type fakePower struct {
	usage     map[int]uint32
	initErr   error
	inits     int
	shutdowns int
}

func (f *fakePower) Initialize() error {
	f.inits++
	return f.initErr
}

func (f *fakePower) Shutdown() error {
	f.shutdowns++
	return nil
}

func (f *fakePower) PowerUsage(index int) (uint32, error) {
	mw, ok := f.usage[index]
	if !ok {
		return 0, stderrors.New("invalid argument")
	}
	return mw, nil
}

func TestNVMLSample(t *testing.T) {
	src := &fakePower{usage: map[int]uint32{0: 0, 1: 240000}}
	n := sampler.NewNVML(logger.Nop(), fixedOpts(nil)...).WithSource(src)

	gpu := device.Device{ID: "gpu1", Type: device.TypeNVML, Connection: map[string]string{"index": "1"}}
	r, err := n.Sample(context.Background(), gpu)
	require.NoError(t, err)
	assert.InDelta(t, 240.0, r.Power, 1e-9)
	assert.InDelta(t, 12.0, r.Voltage, 1e-9)
	assert.InDelta(t, 20.0, r.Current, 1e-9)
	assert.True(t, r.State)
	require.NoError(t, r.Validate())

	idle := device.Device{ID: "gpu0", Type: device.TypeNVML, Connection: map[string]string{"nominal_voltage": "48"}}
	r, err = n.Sample(context.Background(), idle)
	require.NoError(t, err)
	assert.False(t, r.State)
	assert.InDelta(t, 48.0, r.Voltage, 1e-9)

	assert.Equal(t, 1, src.inits, "initialised once")

	_, err = n.Sample(context.Background(), device.Device{ID: "gpu9", Type: device.TypeNVML, Connection: map[string]string{"index": "9"}})
	assert.True(t, errors.HasCode(err, sampler.ErrNVMLRead))

	_, err = n.Sample(context.Background(), device.Device{ID: "gpu", Type: device.TypeNVML, Connection: map[string]string{"nominal_voltage": "0"}})
	assert.True(t, errors.HasCode(err, sampler.ErrInvalidConnection))

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.Equal(t, 1, src.shutdowns)
}

func TestNVMLInitFailureRetries(t *testing.T) {
	src := &fakePower{initErr: stderrors.New("driver not loaded")}
	n := sampler.NewNVML(logger.Nop()).WithSource(src)

	gpu := device.Device{ID: "gpu0", Type: device.TypeNVML}
	_, err := n.Sample(context.Background(), gpu)
	assert.True(t, errors.HasCode(err, sampler.ErrNVMLInit))

	_, err = n.Sample(context.Background(), gpu)
	require.Error(t, err)
	assert.Equal(t, 2, src.inits)

	require.NoError(t, n.Close())
	assert.Zero(t, src.shutdowns)
}
