package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/telemetryd/internal/config"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "telemetryd.toml", `
log_level = "debug"
pid_file = "/run/telemetryd.pid"

[server]
addr = ":8080"
read_timeout = "5s"

[devices]
path = "/etc/telemetryd/devices.yaml"

[store]
driver = "clickhouse"

[store.clickhouse]
addr = ["ch1:9000", "ch2:9000"]
database = "plugs"

[collection]
default_interval = 30
seed = false

[mqtt]
enabled = true
broker = "tcp://broker:1883"
qos = 1
`)
	t.Setenv(config.EnvConfigPath, path)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/run/telemetryd.pid", cfg.PIDFile)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, "/etc/telemetryd/devices.yaml", cfg.Devices.Path)
	assert.Equal(t, "clickhouse", cfg.Store.Driver)
	assert.Equal(t, []string{"ch1:9000", "ch2:9000"}, cfg.Store.ClickHouse.Addr)
	assert.Equal(t, "plugs", cfg.Store.ClickHouse.Database)
	assert.Equal(t, 30, cfg.Collection.DefaultInterval)
	assert.False(t, cfg.Collection.Seed)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, "telemetry/{device_id}/reading", cfg.MQTT.Topic)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Chdir(t.TempDir())

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "telemetry.db", cfg.Store.SQLite.Path)
	assert.Equal(t, "devices.json", cfg.Devices.Path)
	assert.Equal(t, config.DefaultInterval, cfg.Collection.DefaultInterval)
	assert.Equal(t, 10*time.Second, cfg.Collection.RetryBackoff)
	assert.True(t, cfg.Collection.Seed)
	assert.Equal(t, 12, cfg.Collection.SeedPoints)
	assert.Equal(t, 5*time.Minute, cfg.Collection.SeedSpacing)
	assert.False(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.InfluxDB.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Chdir(t.TempDir())
	t.Setenv("TELEMETRYD_SERVER_ADDR", ":9999")
	t.Setenv("TELEMETRYD_COLLECTION_DEFAULT_INTERVAL", "3")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Collection.DefaultInterval)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, "telemetryd.toml", `
This is not a valid TOML file
`)
	t.Setenv(config.EnvConfigPath, path)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "telemetryd.toml", `
log_level = "invalid"
`)
	t.Setenv(config.EnvConfigPath, path)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "telemetryd.yaml", `
log_level: warn
store:
  sqlite:
    path: from-file.db
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--log-level", "debug", "--db", "/tmp/flag.db"}))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
	assert.Equal(t, "/tmp/flag.db", cfg.Store.SQLite.Path)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			LogLevel: "info",
			Server:   config.ServerConfig{Addr: ":5000"},
			Devices:  config.DevicesConfig{Path: "devices.json"},
			Store: config.StoreConfig{
				Driver: "sqlite",
				SQLite: config.SQLiteConfig{Path: "t.db"},
			},
			Collection: config.CollectionConfig{
				DefaultInterval: 10,
				RetryBackoff:    time.Second,
			},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   errors.ErrorCode
	}{
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "mongo" }, errors.ErrInvalidConfig},
		{"zero interval", func(c *config.Config) { c.Collection.DefaultInterval = 0 }, errors.ErrInvalidInterval},
		{"no backoff", func(c *config.Config) { c.Collection.RetryBackoff = 0 }, errors.ErrInvalidConfig},
		{"mqtt without broker", func(c *config.Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker = ""
		}, errors.ErrInvalidConfig},
		{"mqtt bad qos", func(c *config.Config) {
			c.MQTT = config.MQTTConfig{Enabled: true, Broker: "tcp://b:1883", QoS: 3}
		}, errors.ErrInvalidConfig},
		{"influx without bucket", func(c *config.Config) {
			c.InfluxDB = config.InfluxDBConfig{Enabled: true, URL: "http://i:8086", Org: "o"}
		}, errors.ErrInvalidConfig},
		{"bad log level", func(c *config.Config) { c.LogLevel = "chatty" }, errors.ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code))
		})
	}
}

func TestValidateNormalizesWarning(t *testing.T) {
	cfg := &config.Config{
		LogLevel:   "WARNING",
		Server:     config.ServerConfig{Addr: ":5000"},
		Devices:    config.DevicesConfig{Path: "d.json"},
		Store:      config.StoreConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: "t.db"}},
		Collection: config.CollectionConfig{DefaultInterval: 1, RetryBackoff: time.Second},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "warn", cfg.LogLevel)
}
