package sink_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/sink"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

var sample = telemetry.Reading{
	ID:        "r1",
	DeviceID:  "device1",
	Timestamp: "2024-03-01T12:00:00.500000",
	Power:     120.5,
	Current:   0.52,
	Voltage:   231.2,
	Energy:    0.1205,
	State:     true,
}

type recordingSink struct {
	mu        sync.Mutex
	published []telemetry.Reading
	err       error
	closed    bool
}

func (s *recordingSink) Publish(_ context.Context, r telemetry.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, r)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestFanout(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: stderrors.New("broker gone")}
	f := sink.NewFanout(failing, ok)

	err := f.Publish(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
	assert.Len(t, ok.published, 1, "a failing sink does not stop the others")

	require.NoError(t, f.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestEmptyFanoutIsNoop(t *testing.T) {
	f := sink.NewFanout()
	assert.NoError(t, f.Publish(context.Background(), sample))
	assert.NoError(t, f.Close())
}

func TestNewWithNothingEnabled(t *testing.T) {
	f, err := sink.New(context.Background(), sink.DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	assert.Zero(t, f.Len())
}

func TestConfigValidate(t *testing.T) {
	cfg := sink.DefaultConfig()
	cfg.MQTT.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.MQTT.Topic = "telemetry/all"
	err := cfg.Validate()
	assert.True(t, errors.HasCode(err, sink.ErrInvalidConfig))

	cfg = sink.DefaultConfig()
	cfg.Influx.Enabled = true
	err = cfg.Validate()
	assert.True(t, errors.HasCode(err, sink.ErrInvalidConfig), "org is required")
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	token        pahomqtt.Token
	messages     []published
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeMQTT) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeMQTT{token: completedToken(nil)}
	m := sink.NewMQTTWithClient(client, sink.MQTTConfig{QoS: 1}, logger.Nop())

	require.NoError(t, m.Publish(context.Background(), sample))
	require.Len(t, client.messages, 1)

	msg := client.messages[0]
	assert.Equal(t, "telemetry/device1/reading", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.False(t, msg.retained)

	var decoded telemetry.Reading
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, sample, decoded)

	require.NoError(t, m.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublishErrors(t *testing.T) {
	client := &fakeMQTT{token: completedToken(stderrors.New("not connected"))}
	m := sink.NewMQTTWithClient(client, sink.MQTTConfig{Topic: "plugs/{device_id}"}, logger.Nop())
	assert.Equal(t, "plugs/device1", m.Topic("device1"))

	err := m.Publish(context.Background(), sample)
	assert.True(t, errors.HasCode(err, sink.ErrPublishFailed))

	client.token = &fakeToken{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Publish(ctx, sample)
	assert.True(t, errors.HasCode(err, sink.ErrPublishTimeout))
}

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (w *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	w.points = append(w.points, points...)
	return w.err
}

func TestInfluxPoint(t *testing.T) {
	p, err := sink.Point(sample)
	require.NoError(t, err)

	assert.Equal(t, sink.Measurement, p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "device_id", p.TagList()[0].Key)
	assert.Equal(t, "device1", p.TagList()[0].Value)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 500000000, time.UTC), p.Time())

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 120.5, fields["power"])
	assert.Equal(t, 0.1205, fields["energy"])
	assert.Equal(t, true, fields["state"])
	assert.Len(t, fields, 5)
}

func TestInfluxPublish(t *testing.T) {
	w := &fakeWriter{}
	i := sink.NewInfluxWithWriter(w, logger.Nop())

	require.NoError(t, i.Publish(context.Background(), sample))
	assert.Len(t, w.points, 1)

	bad := sample
	bad.Timestamp = "not a time"
	err := i.Publish(context.Background(), bad)
	assert.True(t, errors.HasCode(err, sink.ErrEncodeFailed))

	w.err = stderrors.New("401 unauthorized")
	err = i.Publish(context.Background(), sample)
	assert.True(t, errors.HasCode(err, sink.ErrPublishFailed))

	require.NoError(t, i.Close())
}
