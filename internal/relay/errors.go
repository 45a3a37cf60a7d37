package relay

import (
	"errors"
	"fmt"
)

var (
	ErrMaxRetriesExceeded = errors.New("relay: max reconnect attempts exceeded")
	ErrConnectionLost     = errors.New("relay: connection lost")
)

// ConnectionError is a failed handshake or transport. It is recovered
// locally by the reconnect policy.
type ConnectionError struct {
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("relay: connection attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
