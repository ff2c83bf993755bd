package errors

// ErrorCode represents a unique identifier for each error type
type ErrorCode string

// Kind groups error codes by how callers are expected to react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindValidation
	KindNotFound
	KindStore
	KindGenerator
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	case KindGenerator:
		return "generator"
	default:
		return "internal"
	}
}

// Error represents a domain-specific error with context
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory defines methods for creating domain errors
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
