package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Cart persistence modes.
const (
	CartPersistenceNone     = "none"
	CartPersistenceRedis    = "redis"
	CartPersistencePostgres = "postgres"
)

// Key-value backends for the session store.
const (
	KVBackendMemory = "memory"
	KVBackendRedis  = "redis"
)

var (
	ErrMissingSocketURL = errors.New("APP_SOCKET_URL is required")
	ErrMissingAPIURL    = errors.New("APP_API_URL is required")
)

type Config struct {
	AppEnv    string
	APIURL    string
	SocketURL string

	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HandshakeTimeout     time.Duration

	CartPersistence string
	CartSnapshotTTL time.Duration

	KVBackend    string
	KVSealingKey string

	RedisAddr     string
	RedisPassword string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	MetricsAddr string
}

// Load reads the environment (and an optional .env file) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		APIURL:        os.Getenv("APP_API_URL"),
		SocketURL:     os.Getenv("APP_SOCKET_URL"),
		KVSealingKey:  os.Getenv("KV_SEALING_KEY"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBPort:        getEnv("DB_PORT", "5432"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
	}

	var err error
	if cfg.MaxReconnectAttempts, err = getInt("SOCKET_MAX_RECONNECT_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = getDuration("SOCKET_RECONNECT_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.HandshakeTimeout, err = getDuration("SOCKET_HANDSHAKE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CartSnapshotTTL, err = getDuration("CART_SNAPSHOT_TTL", 72*time.Hour); err != nil {
		return nil, err
	}

	cfg.CartPersistence = getEnv("CART_PERSISTENCE", CartPersistenceNone)
	switch cfg.CartPersistence {
	case CartPersistenceNone, CartPersistenceRedis, CartPersistencePostgres:
	default:
		return nil, fmt.Errorf("unknown CART_PERSISTENCE %q", cfg.CartPersistence)
	}

	cfg.KVBackend = getEnv("KV_BACKEND", KVBackendMemory)
	switch cfg.KVBackend {
	case KVBackendMemory, KVBackendRedis:
	default:
		return nil, fmt.Errorf("unknown KV_BACKEND %q", cfg.KVBackend)
	}

	if cfg.MaxReconnectAttempts < 1 {
		return nil, fmt.Errorf("SOCKET_MAX_RECONNECT_ATTEMPTS must be positive, got %d", cfg.MaxReconnectAttempts)
	}

	return cfg, nil
}

// RequireSocket is checked by binaries that open the location channel.
func (c *Config) RequireSocket() error {
	if c.SocketURL == "" {
		return ErrMissingSocketURL
	}
	return nil
}

// RequireAPI is checked by binaries that talk to the REST backend.
func (c *Config) RequireAPI() error {
	if c.APIURL == "" {
		return ErrMissingAPIURL
	}
	return nil
}

// LoadConfig is Load for binaries: a bad environment is fatal.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Environment variables not loaded properly: %v", err)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
