package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSnapshotTTL = 72 * time.Hour

// RedisSnapshotter stores the cart as JSON under cart:<session>.
type RedisSnapshotter struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisSnapshotter(client redis.Cmdable, ttl time.Duration) *RedisSnapshotter {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &RedisSnapshotter{client: client, ttl: ttl}
}

func (r *RedisSnapshotter) Load(ctx context.Context, sessionID string) ([]LineItem, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	data, err := r.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", ErrFailedLoadSnapshot, err)
	}

	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: decode items: %v", ErrFailedLoadSnapshot, err)
	}
	return items, nil
}

func (r *RedisSnapshotter) Save(ctx context.Context, sessionID string, items []LineItem) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: encode items: %v", ErrFailedSaveSnapshot, err)
	}

	if err := r.client.Set(ctx, snapshotKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", ErrFailedSaveSnapshot, err)
	}
	return nil
}

func (r *RedisSnapshotter) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if err := r.client.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %v", ErrFailedSaveSnapshot, err)
	}
	return nil
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
