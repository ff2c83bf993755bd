package telemetry

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/telemetryd/internal/errors"
)

const (
	DriverSQLite     = "sqlite"
	DriverClickHouse = "clickhouse"

	// MemoryPath opens a private in-memory SQLite database.
	MemoryPath = ":memory:"

	defaultDirPerm     = 0o755
	defaultDBPath      = "telemetry.db"
	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Driver string

	DBPath string
	// BackupDir receives a copy of the database before an incompatible
	// schema is recreated. Defaults to a "backups" directory next to DBPath.
	BackupDir   string
	BusyTimeout time.Duration

	ClickHouse ClickHouseConfig
}

type ClickHouseConfig struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Driver:      DriverSQLite,
		DBPath:      defaultDBPath,
		BusyTimeout: defaultBusyTimeout,
		ClickHouse: ClickHouseConfig{
			Addr:        []string{"localhost:9000"},
			Database:    "telemetry",
			Username:    "default",
			DialTimeout: 5 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch c.Driver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errFactory.New(ErrInvalidDBPath)
		}
	case DriverClickHouse:
		if len(c.ClickHouse.Addr) == 0 || c.ClickHouse.Database == "" {
			return errFactory.WithData(ErrInvalidConfig, "clickhouse addr and database are required")
		}
	default:
		return errFactory.WithData(ErrInvalidConfig, "unknown driver "+c.Driver)
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
