package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "TELEMETRYD"
	EnvConfigPath = EnvPrefix + "_CONFIG"

	DefaultLogLevel = "info"
	DefaultAddr     = ":5000"
	DefaultInterval = 10
)

// flag name -> config key
var flagKeys = map[string]string{
	"log-level": "log_level",
	"addr":      "server.addr",
	"devices":   "devices.path",
	"db":        "store.sqlite.path",
	"pid-file":  "pid_file",
}

// RegisterFlags adds the configuration flags shared by every command.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (env "+EnvConfigPath+")")
	fs.String("log-level", "", "Log level: trace, debug, info, warn, error")
	fs.String("addr", "", "HTTP listen address")
	fs.String("devices", "", "Path to the device definition file")
	fs.String("db", "", "Path to the SQLite database")
	fs.String("pid-file", "", "Path to the PID file")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_json", false)
	v.SetDefault("pid_file", "")

	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("devices.path", "devices.json")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite.path", "telemetry.db")
	v.SetDefault("store.clickhouse.addr", []string{"localhost:9000"})
	v.SetDefault("store.clickhouse.database", "telemetry")
	v.SetDefault("store.clickhouse.username", "default")
	v.SetDefault("store.clickhouse.password", "")
	v.SetDefault("store.clickhouse.dial_timeout", 5*time.Second)

	v.SetDefault("collection.default_interval", DefaultInterval)
	v.SetDefault("collection.retry_backoff", 10*time.Second)
	v.SetDefault("collection.seed", true)
	v.SetDefault("collection.seed_points", 12)
	v.SetDefault("collection.seed_spacing", 5*time.Minute)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "telemetryd")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "telemetry/{device_id}/reading")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "telemetry")
}

// Load resolves configuration from defaults, an optional config file,
// TELEMETRYD_* environment variables and flags, in increasing priority.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	errFactory := errors.New()

	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv(EnvConfigPath)
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName("telemetryd")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telemetryd")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errFactory := errors.New()
	invalid := func(format string, args ...any) error {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "warning" {
		c.LogLevel = string(LogLevelWarning)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Server.Addr == "" {
		return invalid("server.addr must be set")
	}
	if c.Devices.Path == "" {
		return invalid("devices.path must be set")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return invalid("store.sqlite.path must be set")
		}
	case "clickhouse":
		if len(c.Store.ClickHouse.Addr) == 0 {
			return invalid("store.clickhouse.addr must be set")
		}
	default:
		return invalid("unknown store.driver %q", c.Store.Driver)
	}

	if c.Collection.DefaultInterval < 1 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Collection.DefaultInterval)
	}
	if c.Collection.RetryBackoff <= 0 {
		return invalid("collection.retry_backoff must be positive")
	}
	if c.Collection.SeedPoints < 0 || c.Collection.SeedSpacing < 0 {
		return invalid("collection seed settings must not be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return invalid("mqtt.broker must be set when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return invalid("mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" || c.InfluxDB.Org == "") {
		return invalid("influxdb url, org and bucket must be set when influxdb is enabled")
	}

	return nil
}
