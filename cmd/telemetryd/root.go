package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/telemetryd/internal/config"
	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/sink"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "telemetryd",
	Short: "Collect and serve smart plug power telemetry",
	Long: `telemetryd samples power readings from configured devices on a fixed,
runtime-adjustable interval, stores them, and serves current and historical
readings over HTTP.`,
	SilenceUsage: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// loadApp reads configuration for cmd and builds the process logger.
func loadApp(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(os.Stderr, logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Str("command", cmd.Name()).Msg("Config loaded")

	return cfg, log, nil
}

// env holds what every data command opens.
type env struct {
	registry *device.Registry
	store    telemetry.Store
	log      logger.Logger
}

func openEnv(ctx context.Context, cfg *config.Config, log logger.Logger) (*env, error) {
	registry, err := device.Load(cfg.Devices.Path, log.With("devices"))
	if err != nil {
		return nil, err
	}

	store, err := telemetry.Open(ctx, storeConfig(cfg), log.With("store"))
	if err != nil {
		return nil, err
	}

	return &env{registry: registry, store: store, log: log}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.WarnWithCode(err).Msg("Failed to close store")
	}
}

func storeConfig(cfg *config.Config) telemetry.Config {
	c := telemetry.DefaultConfig()
	c.Driver = cfg.Store.Driver
	c.DBPath = cfg.Store.SQLite.Path
	c.ClickHouse = telemetry.ClickHouseConfig{
		Addr:        cfg.Store.ClickHouse.Addr,
		Database:    cfg.Store.ClickHouse.Database,
		Username:    cfg.Store.ClickHouse.Username,
		Password:    cfg.Store.ClickHouse.Password,
		DialTimeout: cfg.Store.ClickHouse.DialTimeout,
	}

	return c
}

func sinkConfig(cfg *config.Config) sink.Config {
	return sink.Config{
		MQTT: sink.MQTTConfig{
			Enabled:  cfg.MQTT.Enabled,
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		},
		Influx: sink.InfluxConfig{
			Enabled: cfg.InfluxDB.Enabled,
			URL:     cfg.InfluxDB.URL,
			Token:   cfg.InfluxDB.Token,
			Org:     cfg.InfluxDB.Org,
			Bucket:  cfg.InfluxDB.Bucket,
		},
	}
}
