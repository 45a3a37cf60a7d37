package tracking

import "errors"

var (
	ErrMalformedFix = errors.New("fix must be \"lat,lng\"")
	ErrOutOfRange   = errors.New("coordinates out of range")
)
