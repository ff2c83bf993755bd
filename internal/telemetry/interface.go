package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/telemetryd/internal/device"
)

// TimestampLayout is fixed width so that string order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// DefaultRecentLimit caps per-device queries when no limit is given.
const DefaultRecentLimit = 100

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Reading is a single immutable sample of one device.
type Reading struct {
	ID        string  `json:"id"`
	DeviceID  string  `json:"device_id"`
	Timestamp string  `json:"timestamp"`
	Power     float64 `json:"power"`
	Current   float64 `json:"current"`
	Voltage   float64 `json:"voltage"`
	Energy    float64 `json:"energy"`
	State     bool    `json:"state"`
}

type Order int

const (
	Descending Order = iota
	Ascending
)

// Query selects readings. Empty fields do not filter; From and To are
// inclusive bounds compared as strings. Limit 0 means unlimited.
type Query struct {
	DeviceID string
	From     string
	To       string
	Limit    int
	Order    Order
}

// RecentQuery returns newest-first readings of one device.
func RecentQuery(deviceID, from, to string, limit int) Query {
	if limit == 0 {
		limit = DefaultRecentLimit
	}

	return Query{DeviceID: deviceID, From: from, To: to, Limit: limit, Order: Descending}
}

// HistoricalQuery returns oldest-first readings in a closed range,
// optionally restricted to one device.
func HistoricalQuery(from, to, deviceID string) Query {
	return Query{DeviceID: deviceID, From: from, To: to, Order: Ascending}
}

// Setting is a single keyed configuration document kept next to the readings.
type Setting struct {
	Key         string
	Value       string
	Description string
}

// Store persists readings and the small amount of state shared with them.
type Store interface {
	// Append never rejects duplicate timestamps.
	Append(ctx context.Context, r Reading) error
	// LatestPerDevice returns one reading per device ordered by device id.
	// Equal timestamps resolve to the most recently appended reading.
	LatestPerDevice(ctx context.Context) ([]Reading, error)
	Query(ctx context.Context, q Query) ([]Reading, error)
	IsEmpty(ctx context.Context) (bool, error)

	UpsertDevice(ctx context.Context, d device.Device) error

	GetSetting(ctx context.Context, key string) (Setting, bool, error)
	// PutSetting replaces the whole row.
	PutSetting(ctx context.Context, s Setting) error

	Close() error
}
