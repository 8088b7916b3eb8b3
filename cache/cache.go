package cache

import (
	"context"
	"time"
)

// SentinelError is an error.
type SentinelError string

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}

const (
	// ErrNotFound indicates missing cache entry.
	ErrNotFound = SentinelError("missing cache entry")

	// ErrExpired indicates expired cache entry.
	ErrExpired = SentinelError("expired cache entry")

	// ErrRemoteUnavailable indicates the external store is not reachable.
	ErrRemoteUnavailable = SentinelError("remote cache store unavailable")

	// ErrTypeMismatch indicates a cached value of an unexpected type.
	ErrTypeMismatch = SentinelError("cache entry type mismatch")
)

// DefaultTTL indicates default (configured) entry expiration time.
const DefaultTTL = time.Duration(0)

// Metric names reported to stats.Tracker.
const (
	MetricHit         = "cache_hit"
	MetricMiss        = "cache_miss"
	MetricExpired     = "cache_expired"
	MetricWrite       = "cache_write"
	MetricDelete      = "cache_delete"
	MetricEvict       = "cache_evict"
	MetricRemoteHit   = "cache_remote_hit"
	MetricRemoteError = "cache_remote_error"
)

// Stats is a snapshot of cache manager counters.
//
// HitRate is hits over total accesses, 0 before the first access.
// Size counts in-process entries only, the external store is not inspected.
type Stats struct {
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hitRate"`
}

// RemoteStore is a capability interface of an external key-value store.
//
// The manager treats the store as a best-effort accelerant: every operation
// may fail without affecting the in-process tier. Values are JSON-serialized
// entry envelopes, keys are digests (never plaintext logical keys).
type RemoteStore interface {
	// Get returns a stored value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a value, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports value presence.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys lists stored keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Flush removes all values.
	Flush(ctx context.Context) error

	// Ping performs a trivial reachability check.
	Ping(ctx context.Context) error
}
