package sampler

import "codeberg.org/mutker/telemetryd/internal/errors"

const (
	ErrGenerationFailed  = errors.ErrorCode("sampler_generation_failed")
	ErrUnsupportedDevice = errors.ErrorCode("sampler_unsupported_device")
	ErrDeviceUnreachable = errors.ErrorCode("sampler_device_unreachable")
	ErrTimeout           = errors.ErrorCode("sampler_timeout")
	ErrInvalidConnection = errors.ErrorCode("sampler_invalid_connection")

	// NVML
	ErrNVMLInit     = errors.ErrorCode("sampler_nvml_init_failed")
	ErrNVMLShutdown = errors.ErrorCode("sampler_nvml_shutdown_failed")
	ErrNVMLRead     = errors.ErrorCode("sampler_nvml_read_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrGenerationFailed:  "Failed to generate reading",
		ErrUnsupportedDevice: "Unsupported device type",
		ErrDeviceUnreachable: "Device unreachable",
		ErrTimeout:           "Device did not answer in time",
		ErrInvalidConnection: "Invalid device connection parameters",
		ErrNVMLInit:          "Failed to initialize NVML",
		ErrNVMLShutdown:      "Failed to shut down NVML",
		ErrNVMLRead:          "Failed to read from GPU",
	})

	kinds := make(map[errors.ErrorCode]errors.Kind)
	for _, code := range []errors.ErrorCode{
		ErrGenerationFailed, ErrUnsupportedDevice, ErrDeviceUnreachable, ErrTimeout,
		ErrNVMLInit, ErrNVMLShutdown, ErrNVMLRead,
	} {
		kinds[code] = errors.KindGenerator
	}
	kinds[ErrInvalidConnection] = errors.KindConfig
	errors.RegisterKinds(kinds)
}
