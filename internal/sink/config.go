package sink

import (
	"strings"
	"time"

	"codeberg.org/mutker/telemetryd/internal/errors"
)

const (
	// DeviceIDPlaceholder is replaced in MQTT topics.
	DeviceIDPlaceholder = "{device_id}"

	defaultTopic          = "telemetry/" + DeviceIDPlaceholder + "/reading"
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultDisconnectMS   = 1000
	maxQoS                = 2
)

type Config struct {
	MQTT   MQTTConfig
	Influx InfluxConfig
}

type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      int
}

type InfluxConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

func DefaultConfig() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "telemetryd",
			Topic:    defaultTopic,
		},
		Influx: InfluxConfig{
			URL:    "http://localhost:8086",
			Bucket: "telemetry",
		},
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errFactory.WithData(ErrInvalidConfig, "mqtt broker is empty")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > maxQoS {
			return errFactory.WithData(ErrInvalidConfig, "mqtt qos out of range")
		}
		if !strings.Contains(c.MQTT.Topic, DeviceIDPlaceholder) {
			return errFactory.WithData(ErrInvalidConfig, "mqtt topic must contain "+DeviceIDPlaceholder)
		}
	}

	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "") {
		return errFactory.WithData(ErrInvalidConfig, "influxdb url, org and bucket are required")
	}

	return nil
}
