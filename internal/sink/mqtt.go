package sink

import (
	"context"
	"encoding/json"
	"strings"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient is the subset of the paho client used for publishing.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each reading as JSON to a per-device topic.
type MQTT struct {
	client MQTTClient
	cfg    MQTTConfig
	logger logger.Logger
}

// NewMQTT connects to the configured broker.
func NewMQTT(cfg MQTTConfig, log logger.Logger) (*MQTT, error) {
	errFactory := errors.New()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, errFactory.WithData(ErrConnectFailed, "mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")

	return NewMQTTWithClient(client, cfg, log), nil
}

// NewMQTTWithClient wraps an already connected client.
func NewMQTTWithClient(client MQTTClient, cfg MQTTConfig, log logger.Logger) *MQTT {
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}

	return &MQTT{client: client, cfg: cfg, logger: log}
}

// Topic returns the topic a reading of deviceID is published to.
func (m *MQTT) Topic(deviceID string) string {
	return strings.ReplaceAll(m.cfg.Topic, DeviceIDPlaceholder, deviceID)
}

func (m *MQTT) Publish(ctx context.Context, r telemetry.Reading) error {
	errFactory := errors.New()

	payload, err := json.Marshal(r)
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	topic := m.Topic(r.DeviceID)
	token := m.client.Publish(topic, byte(m.cfg.QoS), false, payload)

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return errFactory.WithData(ErrPublishTimeout, topic)
	}

	if err := token.Error(); err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	m.logger.Debug().Str("topic", topic).Msg("Reading published")

	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(defaultDisconnectMS)
	return nil
}
