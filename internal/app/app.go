// Package app wires configuration into the long-lived collaborators the
// binaries share.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-core/internal/cart"
	"storefront-core/internal/config"
	"storefront-core/internal/db"
	"storefront-core/internal/kvstore"
	"storefront-core/internal/logger"
	"storefront-core/internal/metrics"
	"storefront-core/internal/relay"
	"storefront-core/internal/relay/socket"
	"storefront-core/internal/storefront"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 3 * time.Second

type App struct {
	Config   *config.Config
	Session  *kvstore.Session
	Registry *prometheus.Registry
	Metrics  *metrics.RelayMetrics

	redis *redis.Client
	db    *sql.DB
	relay *relay.Relay
	api   *storefront.Client
}

// New connects Redis when any component needs it and opens the session
// store. Postgres, the relay and the REST client are built on first use.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
	}
	a.Metrics = metrics.NewRelayMetrics(a.Registry)

	var cmd redis.Cmdable
	if cfg.KVBackend == config.KVBackendRedis || cfg.CartPersistence == config.CartPersistenceRedis {
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.redis = client
		cmd = client
	}

	store, err := kvstore.Open(cfg, cmd)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = kvstore.NewSession(store)

	return a, nil
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	logger.L().Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	return client, nil
}

// Relay returns the location relay, building it on first call.
func (a *App) Relay() (*relay.Relay, error) {
	if a.relay != nil {
		return a.relay, nil
	}
	if err := a.Config.RequireSocket(); err != nil {
		return nil, err
	}

	dialer := socket.NewDialer(a.Config.SocketURL, a.Session.AccessToken, socket.Options{})
	a.relay = relay.New(dialer, relay.Options{
		MaxReconnectAttempts: a.Config.MaxReconnectAttempts,
		ReconnectDelay:       a.Config.ReconnectDelay,
		HandshakeTimeout:     a.Config.HandshakeTimeout,
	}, a.Metrics)
	return a.relay, nil
}

// API returns the REST client, building it on first call.
func (a *App) API() (*storefront.Client, error) {
	if a.api != nil {
		return a.api, nil
	}
	if err := a.Config.RequireAPI(); err != nil {
		return nil, err
	}

	client, err := storefront.NewClient(a.Config.APIURL, a.Session.AccessToken)
	if err != nil {
		return nil, err
	}
	a.api = client
	return client, nil
}

// Snapshotter returns the cart persistence selected by CART_PERSISTENCE;
// nil means the cart lives only in memory.
func (a *App) Snapshotter() (cart.Snapshotter, error) {
	switch a.Config.CartPersistence {
	case config.CartPersistenceRedis:
		if a.redis == nil {
			return nil, errors.New("cart persistence redis without a redis client")
		}
		return cart.NewRedisSnapshotter(a.redis, a.Config.CartSnapshotTTL), nil
	case config.CartPersistencePostgres:
		if a.db == nil {
			conn, err := db.NewDatabase(a.Config)
			if err != nil {
				return nil, err
			}
			a.db = conn
		}
		return cart.NewRepository(a.db), nil
	default:
		return nil, nil
	}
}

// Cart opens the cart bound to the stored cart session, creating and
// remembering a new session id the first time.
func (a *App) Cart(ctx context.Context) (cart.Service, error) {
	snapshots, err := a.Snapshotter()
	if err != nil {
		return nil, err
	}

	sessionID, err := a.Session.CartSessionID(ctx)
	if err != nil {
		return nil, err
	}

	svc := cart.NewService(cart.NewStore(), snapshots, sessionID)
	if sessionID == "" {
		if err := a.Session.SaveCartSessionID(ctx, svc.SessionID()); err != nil {
			return nil, err
		}
	}

	if _, err := svc.Open(ctx); err != nil {
		logger.FromCtx(ctx).Warn("cart restore failed, starting empty", zap.Error(err))
	}
	return svc, nil
}

// Close disconnects the relay and releases connections. Safe to call more
// than once.
func (a *App) Close() {
	if a.relay != nil {
		a.relay.Disconnect()
	}
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
}
