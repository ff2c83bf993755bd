package device

import "codeberg.org/mutker/telemetryd/internal/errors"

const (
	ErrInvalidDefinition = errors.ErrorCode("device_invalid_definition")
	ErrNotFound          = errors.ErrorCode("device_not_found")
	ErrWriteDefaults     = errors.ErrorCode("device_write_defaults_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidDefinition: "Invalid device definition",
		ErrNotFound:          "Device not found",
		ErrWriteDefaults:     "Failed to write default device definitions",
	})

	errors.RegisterKinds(map[errors.ErrorCode]errors.Kind{
		ErrInvalidDefinition: errors.KindConfig,
		ErrNotFound:          errors.KindNotFound,
		ErrWriteDefaults:     errors.KindConfig,
	})
}
