package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var clickhouseTables = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id         String,
		device_id  String,
		timestamp  String,
		power      Float64,
		current    Float64,
		voltage    Float64,
		energy     Float64,
		state      Bool,
		seq        UInt64
	) ENGINE = MergeTree
	ORDER BY (device_id, timestamp, seq)`,

	`CREATE TABLE IF NOT EXISTS devices (
		id          String,
		name        String,
		type        String,
		connection  String,
		updated_at  DateTime64(6)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY id`,

	`CREATE TABLE IF NOT EXISTS settings (
		key          String,
		value        String,
		description  String,
		updated_at   DateTime64(6)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY key`,
}

type clickhouseStore struct {
	conn    driver.Conn
	logger  logger.Logger
	lastSeq atomic.Uint64
}

// NewClickHouseStore connects to ClickHouse and creates missing tables.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	for _, tableSQL := range clickhouseTables {
		if err := conn.Exec(ctx, tableSQL); err != nil {
			conn.Close()
			return nil, errFactory.Wrap(ErrSchemaInitFailed, err)
		}
	}

	log.Info().
		Strs("addr", cfg.Addr).
		Str("database", cfg.Database).
		Msg("ClickHouse store initialized")

	return &clickhouseStore{conn: conn, logger: log}, nil
}

// nextSeq returns a strictly increasing insertion sequence for this process.
func (s *clickhouseStore) nextSeq() uint64 {
	for {
		last := s.lastSeq.Load()
		next := uint64(time.Now().UnixNano())
		if next <= last {
			next = last + 1
		}
		if s.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (s *clickhouseStore) Append(ctx context.Context, r Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO readings (id, device_id, timestamp, power, current, voltage, energy, state, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.DeviceID,
		r.Timestamp,
		r.Power,
		r.Current,
		r.Voltage,
		r.Energy,
		r.State,
		s.nextSeq(),
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *clickhouseStore) LatestPerDevice(ctx context.Context) ([]Reading, error) {
	return s.queryReadings(ctx, `
		SELECT `+selectReadingColumns+`
		FROM readings
		ORDER BY device_id ASC, timestamp DESC, seq DESC
		LIMIT 1 BY device_id
	`)
}

func (s *clickhouseStore) Query(ctx context.Context, q Query) ([]Reading, error) {
	var (
		where []string
		args  []any
	)

	if q.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, q.DeviceID)
	}
	if q.From != "" {
		where = append(where, "timestamp >= ?")
		args = append(args, q.From)
	}
	if q.To != "" {
		where = append(where, "timestamp <= ?")
		args = append(args, q.To)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + selectReadingColumns + " FROM readings")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.Order == Ascending {
		sb.WriteString(" ORDER BY timestamp ASC, seq ASC")
	} else {
		sb.WriteString(" ORDER BY timestamp DESC, seq DESC")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	return s.queryReadings(ctx, sb.String(), args...)
}

func (s *clickhouseStore) queryReadings(ctx context.Context, query string, args ...any) ([]Reading, error) {
	errFactory := errors.New()

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Timestamp,
			&r.Power, &r.Current, &r.Voltage, &r.Energy, &r.State); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return readings, nil
}

func (s *clickhouseStore) IsEmpty(ctx context.Context) (bool, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM readings`).Scan(&count); err != nil {
		return false, errors.New().Wrap(ErrStorageAccess, err)
	}

	return count == 0, nil
}

func (s *clickhouseStore) UpsertDevice(ctx context.Context, d device.Device) error {
	errFactory := errors.New()

	conn, err := json.Marshal(d.Connection)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO devices (id, name, type, connection, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.Name, d.Type, string(conn), time.Now().UTC())
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *clickhouseStore) GetSetting(ctx context.Context, key string) (Setting, bool, error) {
	setting := Setting{Key: key}
	err := s.conn.QueryRow(ctx, `
		SELECT value, description
		FROM settings FINAL
		WHERE key = ?
	`, key).Scan(&setting.Value, &setting.Description)

	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, false, nil
	}
	if err != nil {
		return Setting{}, false, errors.New().Wrap(ErrStorageAccess, err)
	}

	return setting, true, nil
}

func (s *clickhouseStore) PutSetting(ctx context.Context, setting Setting) error {
	if setting.Key == "" {
		return errors.New().WithData(errors.ErrInvalidArgument, "setting key is empty")
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO settings (key, value, description, updated_at)
		VALUES (?, ?, ?, ?)
	`, setting.Key, setting.Value, setting.Description, time.Now().UTC())
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *clickhouseStore) Close() error {
	if err := s.conn.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	s.logger.Info().Msg("ClickHouse store closed")

	return nil
}
