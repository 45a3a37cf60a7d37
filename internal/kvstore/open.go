package kvstore

import (
	"fmt"

	"storefront-core/internal/config"

	"github.com/redis/go-redis/v9"
)

// Open builds the store selected by cfg. client is only used by the redis
// backend. A non-empty sealing key wraps the backend in Sealed.
func Open(cfg *config.Config, client redis.Cmdable) (Store, error) {
	var store Store
	switch cfg.KVBackend {
	case "", config.KVBackendMemory:
		store = NewMemory()
	case config.KVBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("kvstore: redis backend without a client")
		}
		store = NewRedis(client, defaultPrefix)
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", cfg.KVBackend)
	}

	if cfg.KVSealingKey == "" {
		return store, nil
	}
	key, err := ParseSealingKey(cfg.KVSealingKey)
	if err != nil {
		return nil, err
	}
	return NewSealed(store, key), nil
}
