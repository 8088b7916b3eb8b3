package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bool64/ctxd"
	"github.com/redis/go-redis/v9"
)

// RedisConfig controls Redis-backed remote store instance.
type RedisConfig struct {
	// Addr is a host:port of the Redis server.
	Addr string

	// Password is an optional server password.
	Password string

	// DB is a Redis database number.
	DB int

	// Client overrides connection settings with a preconfigured client.
	Client *redis.Client

	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger
}

var _ RemoteStore = &RedisStore{}

// RedisStore is a RemoteStore over a Redis server.
//
// Entry expiration is delegated to Redis key TTL, so a dead entry disappears
// from the store without a purge round-trip.
type RedisStore struct {
	client *redis.Client
	log    ctxd.Logger
}

// NewRedisStore creates a Redis-backed remote store.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := cfg.Client

	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	return &RedisStore{
		client: client,
		log:    cfg.Logger,
	}
}

// Get returns a stored value or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}

		return "", err
	}

	return val, nil
}

// Set stores a value with expiration.
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a value, reporting whether it existed.
func (r *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	cnt, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return cnt > 0, nil
}

// Exists reports value presence.
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	cnt, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return cnt > 0, nil
}

// Keys lists stored keys matching a glob pattern, empty pattern matches all.
func (r *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	return r.client.Keys(ctx, pattern).Result()
}

// Flush removes all values of the current database.
func (r *RedisStore) Flush(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

// Ping performs a trivial reachability check.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
