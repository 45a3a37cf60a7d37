package relay

import "context"

// Dialer opens the bidirectional channel. Implementations must honour ctx
// for the handshake.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one open channel. Send may be called concurrently with Receive;
// Receive returns an error once the channel is closed from either side.
type Conn interface {
	Send(msg Message) error
	Receive() (Message, error)
	Close() error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
