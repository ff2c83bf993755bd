package config

import "time"

// Config is the fully resolved process configuration.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	LogJSON    bool             `mapstructure:"log_json"`
	PIDFile    string           `mapstructure:"pid_file"`
	Server     ServerConfig     `mapstructure:"server"`
	Devices    DevicesConfig    `mapstructure:"devices"`
	Store      StoreConfig      `mapstructure:"store"`
	Collection CollectionConfig `mapstructure:"collection"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	InfluxDB   InfluxDBConfig   `mapstructure:"influxdb"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type DevicesConfig struct {
	// Path of the device definition file. The extension picks the codec.
	Path string `mapstructure:"path"`
}

type StoreConfig struct {
	// Driver is either "sqlite" or "clickhouse".
	Driver     string           `mapstructure:"driver"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type ClickHouseConfig struct {
	Addr        []string      `mapstructure:"addr"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type CollectionConfig struct {
	DefaultInterval int           `mapstructure:"default_interval"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	Seed            bool          `mapstructure:"seed"`
	SeedPoints      int           `mapstructure:"seed_points"`
	SeedSpacing     time.Duration `mapstructure:"seed_spacing"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Topic may contain {device_id}.
	Topic string `mapstructure:"topic"`
	QoS   int    `mapstructure:"qos"`
}

type InfluxDBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelTrace   LogLevel = "trace"
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
