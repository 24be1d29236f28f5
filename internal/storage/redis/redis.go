package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/moodchat/internal/config"
	"github.com/goodtune/moodchat/internal/storage"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "moodchat"

// Store implements the storage.Store interface using Redis
type Store struct {
	client       *redis.Client
	sessionStore *sessionStore
	deviceStore  *deviceStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	// Create Redis client
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	k := keys{prefix: prefix}

	// Initialize stores
	store := &Store{
		client:       client,
		sessionStore: &sessionStore{client: client, keys: k, now: time.Now},
		deviceStore:  &deviceStore{client: client, keys: k, now: time.Now},
	}

	return store, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore {
	return s.sessionStore
}

// Devices returns the DeviceStore implementation
func (s *Store) Devices() storage.DeviceStore {
	return s.deviceStore
}

// keys builds the Redis key layout:
//
//	{prefix}:session:{sessionID}          hash
//	{prefix}:device:{deviceID}            hash
//	{prefix}:device:{deviceID}:sessions   set of session IDs
type keys struct {
	prefix string
}

func (k keys) session(id string) string {
	return fmt.Sprintf("%s:session:%s", k.prefix, id)
}

func (k keys) device(id string) string {
	return fmt.Sprintf("%s:device:%s", k.prefix, id)
}

func (k keys) deviceSessions(id string) string {
	return fmt.Sprintf("%s:device:%s:sessions", k.prefix, id)
}
