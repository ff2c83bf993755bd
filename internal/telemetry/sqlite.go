package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteStore struct {
	db     *sql.DB
	logger logger.Logger
	memory bool
}

// NewSQLiteStore opens (creating if needed) the database at cfg.DBPath.
// Concurrent writers are serialised by SQLite itself through WAL mode
// and a busy timeout.
func NewSQLiteStore(ctx context.Context, cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	memory := cfg.DBPath == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
			return nil, errFactory.WithData(ErrStorageInit, struct {
				Phase string
				Path  string
				Error string
			}{
				Phase: "create_directory",
				Path:  cfg.DBPath,
				Error: err.Error(),
			})
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(cfg, memory))
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Every connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	backupDir := cfg.backupDir()
	if memory {
		backupDir = ""
	}

	if err := ValidateAndUpdateSchema(ctx, db, backupDir, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("SQLite store initialized")

	return &sqliteStore{db: db, logger: log, memory: memory}, nil
}

func sqliteDSN(cfg Config, memory bool) string {
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}

	params := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on", timeout.Milliseconds())
	if !memory {
		params = "_journal_mode=WAL&" + params
	}

	return cfg.DBPath + "?" + params
}

func (s *sqliteStore) Append(ctx context.Context, r Reading) error {
	errFactory := errors.New()

	if err := r.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, insertReadingSQL,
		r.ID,
		r.DeviceID,
		r.Timestamp,
		r.Power,
		r.Current,
		r.Voltage,
		r.Energy,
		boolToInt(r.State),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) LatestPerDevice(ctx context.Context) ([]Reading, error) {
	return s.queryReadings(ctx, latestPerDeviceSQL)
}

func (s *sqliteStore) Query(ctx context.Context, q Query) ([]Reading, error) {
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
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	return s.queryReadings(ctx, sb.String(), args...)
}

func (s *sqliteStore) queryReadings(ctx context.Context, query string, args ...any) ([]Reading, error) {
	errFactory := errors.New()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		var (
			r     Reading
			state int
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Timestamp,
			&r.Power, &r.Current, &r.Voltage, &r.Energy, &state); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		r.State = state == 1
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return readings, nil
}

func (s *sqliteStore) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM readings)`).Scan(&exists); err != nil {
		return false, errors.New().Wrap(ErrStorageAccess, err)
	}

	return !exists, nil
}

func (s *sqliteStore) UpsertDevice(ctx context.Context, d device.Device) error {
	errFactory := errors.New()

	conn, err := json.Marshal(d.Connection)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	if _, err := s.db.ExecContext(ctx, upsertDeviceSQL, d.ID, d.Name, d.Type, string(conn)); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) GetSetting(ctx context.Context, key string) (Setting, bool, error) {
	setting := Setting{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, description FROM settings WHERE key = ?`, key,
	).Scan(&setting.Value, &setting.Description)

	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, false, nil
	}
	if err != nil {
		return Setting{}, false, errors.New().Wrap(ErrStorageAccess, err)
	}

	return setting, true, nil
}

func (s *sqliteStore) PutSetting(ctx context.Context, setting Setting) error {
	if setting.Key == "" {
		return errors.New().WithData(errors.ErrInvalidArgument, "setting key is empty")
	}

	if _, err := s.db.ExecContext(ctx, upsertSettingSQL, setting.Key, setting.Value, setting.Description); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) Close() error {
	errFactory := errors.New()

	if !s.memory {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to checkpoint WAL")
		}
	}

	if err := s.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("SQLite store closed")

	return nil
}
