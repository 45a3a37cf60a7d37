package auth

import "errors"

var (
	ErrEmptyToken     = errors.New("auth: empty token")
	ErrMalformedToken = errors.New("auth: malformed token")
)
