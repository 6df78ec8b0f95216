package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrTransient         = errors.New("transient failure")
	ErrMalformed         = errors.New("malformed input")
	ErrMirrorFailed      = errors.New("remote mirror failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrConfig            = errors.New("configuration error")
	ErrUnknownClass      = errors.New("unknown document class")
	ErrUnavailable       = errors.New("capability unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

func IsMirrorFailed(err error) bool {
	return errors.Is(err, ErrMirrorFailed)
}

// IsFatal reports configuration and capability failures that must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrDimensionMismatch)
}
