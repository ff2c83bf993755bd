package sink

import "codeberg.org/mutker/telemetryd/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrorCode("sink_invalid_config")
	ErrConnectFailed  = errors.ErrorCode("sink_connect_failed")
	ErrPublishFailed  = errors.ErrorCode("sink_publish_failed")
	ErrPublishTimeout = errors.ErrorCode("sink_publish_timeout")
	ErrEncodeFailed   = errors.ErrorCode("sink_encode_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidConfig:  "Invalid sink configuration",
		ErrConnectFailed:  "Failed to connect sink",
		ErrPublishFailed:  "Failed to publish reading",
		ErrPublishTimeout: "Timed out publishing reading",
		ErrEncodeFailed:   "Failed to encode reading",
	})
	errors.RegisterKinds(map[errors.ErrorCode]errors.Kind{
		ErrInvalidConfig: errors.KindConfig,
	})
}
