package telemetry

import "codeberg.org/mutker/telemetryd/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("telemetry_invalid_db_path")

	// Data Errors
	ErrInvalidReading = errors.ErrorCode("telemetry_invalid_reading")

	// Storage Errors
	ErrStorageAccess    = errors.ErrorCode("telemetry_storage_access_failed")
	ErrStorageInit      = errors.ErrorCode("telemetry_storage_init_failed")
	ErrStorageClose     = errors.ErrorCode("telemetry_storage_close_failed")
	ErrSchemaInitFailed = errors.ErrorCode("telemetry_schema_init_failed")

	// Schema Errors
	ErrSchemaValidationFailed = errors.ErrorCode("telemetry_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("telemetry_schema_migration_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidConfig:          "Invalid store configuration",
		ErrInvalidDBPath:          "Invalid database path",
		ErrInvalidReading:         "Invalid reading",
		ErrStorageAccess:          "Failed to access storage",
		ErrStorageInit:            "Failed to initialize storage",
		ErrStorageClose:           "Failed to close storage",
		ErrSchemaInitFailed:       "Failed to initialize schema",
		ErrSchemaValidationFailed: "Failed to validate schema",
		ErrSchemaMigrationFailed:  "Failed to migrate schema",
	})

	errors.RegisterKinds(map[errors.ErrorCode]errors.Kind{
		ErrInvalidConfig:          errors.KindConfig,
		ErrInvalidDBPath:          errors.KindConfig,
		ErrInvalidReading:         errors.KindValidation,
		ErrStorageAccess:          errors.KindStore,
		ErrStorageInit:            errors.KindStore,
		ErrStorageClose:           errors.KindStore,
		ErrSchemaInitFailed:       errors.KindStore,
		ErrSchemaValidationFailed: errors.KindStore,
		ErrSchemaMigrationFailed:  errors.KindStore,
	})
}
