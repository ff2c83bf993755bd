package telemetry

import (
	"context"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
)

// Open validates cfg and opens the store for the configured driver.
func Open(ctx context.Context, cfg Config, log logger.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	switch cfg.Driver {
	case DriverClickHouse:
		return NewClickHouseStore(ctx, cfg.ClickHouse, log)
	default:
		return NewSQLiteStore(ctx, cfg, log)
	}
}
