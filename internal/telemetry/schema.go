package telemetry

import (
	"context"
	"database/sql"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS readings (
	       seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	       id         TEXT NOT NULL UNIQUE,
	       device_id  TEXT NOT NULL,
	       timestamp  TEXT NOT NULL,
	       power      REAL NOT NULL CHECK (power >= 0),
	       current    REAL NOT NULL CHECK (current >= 0),
	       voltage    REAL NOT NULL CHECK (voltage > 0),
	       energy     REAL NOT NULL,
	       state      INTEGER NOT NULL CHECK (state IN (0, 1))
	   );
	   CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings (device_id, timestamp, seq);
	   CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings (timestamp, seq);
	   CREATE TABLE IF NOT EXISTS devices (
	       id          TEXT PRIMARY KEY,
	       name        TEXT NOT NULL,
	       type        TEXT NOT NULL,
	       connection  TEXT NOT NULL,
	       updated_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS settings (
	       key          TEXT PRIMARY KEY,
	       value        TEXT NOT NULL,
	       description  TEXT NOT NULL,
	       updated_at   TEXT NOT NULL
	   );`

	insertReadingSQL = `
    INSERT INTO readings (
        id, device_id, timestamp,
        power, current, voltage, energy,
        state
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectReadingColumns = `id, device_id, timestamp, power, current, voltage, energy, state`

	latestPerDeviceSQL = `
    SELECT ` + selectReadingColumns + `
    FROM readings r
    WHERE r.seq = (
        SELECT r2.seq FROM readings r2
        WHERE r2.device_id = r.device_id
        ORDER BY r2.timestamp DESC, r2.seq DESC
        LIMIT 1
    )
    ORDER BY r.device_id`

	upsertDeviceSQL = `
    INSERT INTO devices (id, name, type, connection, updated_at)
    VALUES (?, ?, ?, ?, datetime('now'))
    ON CONFLICT(id) DO UPDATE SET
        name = excluded.name,
        type = excluded.type,
        connection = excluded.connection,
        updated_at = excluded.updated_at`

	upsertSettingSQL = `
    INSERT INTO settings (key, value, description, updated_at)
    VALUES (?, ?, ?, datetime('now'))
    ON CONFLICT(key) DO UPDATE SET
        value = excluded.value,
        description = excluded.description,
        updated_at = excluded.updated_at`
)

// managedTables are dropped when the schema version changes.
var managedTables = []string{"readings", "devices", "settings", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(ctx context.Context, db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "create_tables",
			Error: err.Error(),
		})
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "record_version",
			Error: err.Error(),
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(ctx, db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRowContext(ctx, `
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
