package errors

var codeKinds = map[ErrorCode]Kind{
	ErrInvalidConfig:    KindConfig,
	ErrReadConfig:       KindConfig,
	ErrBindFlags:        KindConfig,
	ErrInvalidLogLevel:  KindConfig,
	ErrInvalidArgument:  KindValidation,
	ErrInvalidInterval:  KindValidation,
	ErrResourceNotFound: KindNotFound,
}

// RegisterKinds classifies package specific codes. Call from package init only.
func RegisterKinds(kinds map[ErrorCode]Kind) {
	for code, kind := range kinds {
		codeKinds[code] = kind
	}
}

// KindOf returns the kind of the outermost coded error in err's chain.
// Uncoded errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	return codeKinds[CodeOf(err)]
}
