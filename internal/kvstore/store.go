// Package kvstore persists the small flat state a client keeps between
// runs: session tokens and the last known location.
package kvstore

import (
	"context"
	"errors"
)

const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUserLocation = "userLocation"
	KeyCartSession  = "cartSession"
)

var (
	ErrNotFound     = errors.New("kvstore: key not found")
	ErrEmptyKey     = errors.New("kvstore: empty key")
	ErrInvalidKey   = errors.New("kvstore: sealing key must be 32 bytes")
	ErrUnsealFailed = errors.New("kvstore: cannot open sealed value")
)

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
