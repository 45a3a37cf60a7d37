package cart

import "context"

// Snapshotter persists cart contents between process lifetimes.
type Snapshotter interface {
	Load(ctx context.Context, sessionID string) ([]LineItem, error)
	Save(ctx context.Context, sessionID string, items []LineItem) error
	Delete(ctx context.Context, sessionID string) error
}

// NoopSnapshotter keeps the cart ephemeral: nothing is ever stored.
type NoopSnapshotter struct{}

func (NoopSnapshotter) Load(context.Context, string) ([]LineItem, error) {
	return nil, ErrSnapshotNotFound
}

func (NoopSnapshotter) Save(context.Context, string, []LineItem) error { return nil }

func (NoopSnapshotter) Delete(context.Context, string) error { return nil }
