// Package sink mirrors stored readings to external systems.
package sink

import (
	"context"

	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

// Sink receives every reading after it has been stored.
type Sink interface {
	Publish(ctx context.Context, r telemetry.Reading) error
	Close() error
}
