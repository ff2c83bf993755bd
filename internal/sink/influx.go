package sink

import (
	"context"
	"time"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement readings are written to.
const Measurement = "device_reading"

// PointWriter is satisfied by api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes each reading as one point, synchronously.
type Influx struct {
	client influxdb2.Client
	writer PointWriter
	logger logger.Logger
}

// NewInflux connects and verifies the server is healthy.
func NewInflux(ctx context.Context, cfg InfluxConfig, log logger.Logger) (*Influx, error) {
	errFactory := errors.New()

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, influxdb2.DefaultOptions())

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, errFactory.WithData(ErrConnectFailed, "influxdb server not healthy")
	}

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Connected to InfluxDB")

	return &Influx{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: log,
	}, nil
}

// NewInfluxWithWriter writes through w without owning a client.
func NewInfluxWithWriter(w PointWriter, log logger.Logger) *Influx {
	return &Influx{writer: w, logger: log}
}

// Point converts a reading into an InfluxDB point at the reading's timestamp.
func Point(r telemetry.Reading) (*write.Point, error) {
	ts, err := time.Parse(telemetry.TimestampLayout, r.Timestamp)
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFailed, err)
	}

	return write.NewPoint(
		Measurement,
		map[string]string{"device_id": r.DeviceID},
		map[string]any{
			"power":   r.Power,
			"current": r.Current,
			"voltage": r.Voltage,
			"energy":  r.Energy,
			"state":   r.State,
		},
		ts,
	), nil
}

func (i *Influx) Publish(ctx context.Context, r telemetry.Reading) error {
	p, err := Point(r)
	if err != nil {
		return err
	}

	if err := i.writer.WritePoint(ctx, p); err != nil {
		return errors.New().Wrap(ErrPublishFailed, err)
	}

	return nil
}

func (i *Influx) Close() error {
	if i.client != nil {
		i.client.Close()
	}

	return nil
}
