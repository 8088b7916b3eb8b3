package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"golang.org/x/sync/singleflight"
)

// ManagerConfig controls two-tier cache manager instance.
type ManagerConfig struct {
	// Name is manager instance name, used in stats and logging.
	Name string

	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Remote is an optional external store tier, nil disables it.
	Remote RemoteStore

	// Local is the in-process tier, created from LocalConfig if nil.
	Local *Memory

	// LocalConfig is a configuration for the in-process tier if Local is not provided.
	LocalConfig MemoryConfig

	// TimeToLive is default entry expiration, default 5m.
	TimeToLive time.Duration

	// CoalesceLoads makes concurrent Load misses for one key share a single
	// build. Off by default: plain concurrent misses each run their own
	// build, matching the behavior callers may already account for in
	// telemetry counts.
	CoalesceLoads bool

	// Now is a time source, default time.Now.
	Now func() time.Time
}

// Manager unifies an in-process store and an optional external store.
//
// The in-process tier is authoritative and always healthy; the external tier
// is a best-effort accelerant whose failures are absorbed and logged. Logical
// keys are digested with HashKey before reaching either tier.
//
// Please use NewManager to create instance.
type Manager struct {
	config ManagerConfig
	local  *Memory
	remote RemoteStore

	remoteUp atomic.Bool
	hits     atomic.Int64
	misses   atomic.Int64

	group singleflight.Group
	log   ctxd.Logger
	stat  stats.Tracker
	now   func() time.Time
}

// NewManager creates a two-tier cache manager.
func NewManager(cfg ...ManagerConfig) *Manager {
	config := ManagerConfig{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	local := config.Local
	if local == nil {
		config.LocalConfig.Name = config.Name
		config.LocalConfig.Logger = config.Logger
		config.LocalConfig.Stats = config.Stats

		if config.LocalConfig.TimeToLive == 0 {
			config.LocalConfig.TimeToLive = config.TimeToLive
		}

		if config.LocalConfig.Now == nil {
			config.LocalConfig.Now = config.Now
		}

		local = NewMemory(config.LocalConfig)
	}

	m := &Manager{
		config: config,
		local:  local,
		remote: config.Remote,
		log:    config.Logger,
		stat:   config.Stats,
		now:    config.Now,
	}

	m.remoteUp.Store(config.Remote != nil)

	return m
}

// Get returns a live cached value of type T by logical key.
//
// The external tier is consulted first when available, then the in-process
// map. Expired entries are purged and reported as misses.
func Get[T any](ctx context.Context, m *Manager, key string) (T, bool) {
	var val T

	local, raw, ok := m.lookup(ctx, HashKey(key))
	if !ok {
		return val, false
	}

	if raw != nil {
		if err := json.Unmarshal(raw, &val); err != nil {
			m.remoteError(ctx, "decode", err)

			return val, false
		}

		return val, true
	}

	val, ok = local.(T)
	if !ok {
		if m.log != nil {
			m.log.Warn(ctx, "cached value type mismatch",
				"name", m.config.Name,
				"key", key)
		}

		return val, false
	}

	return val, true
}

// lookup resolves a hashed key across both tiers.
//
// A remote hit is returned as raw JSON, a local hit as the stored value.
func (m *Manager) lookup(ctx context.Context, hashed string) (interface{}, json.RawMessage, bool) {
	if m.remote != nil && m.RemoteAvailable() && !SkipRead(ctx) {
		if raw, ok := m.remoteLookup(ctx, hashed); ok {
			m.hits.Add(1)

			return nil, raw, true
		}
	}

	val, err := m.local.Read(ctx, hashed)
	if err == nil {
		m.hits.Add(1)

		return val, nil, true
	}

	m.misses.Add(1)

	return nil, nil, false
}

func (m *Manager) remoteLookup(ctx context.Context, hashed string) (json.RawMessage, bool) {
	s, err := m.remote.Get(ctx, hashed)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.remoteError(ctx, "get", err)
		}

		return nil, false
	}

	var env envelope

	if err := json.Unmarshal([]byte(s), &env); err != nil {
		m.remoteError(ctx, "decode", err)

		return nil, false
	}

	if !env.live(m.now()) {
		if _, err := m.remote.Delete(ctx, hashed); err != nil {
			m.remoteError(ctx, "purge", err)
		}

		return nil, false
	}

	if m.stat != nil {
		m.stat.Add(ctx, MetricRemoteHit, 1, "name", m.config.Name)
	}

	return env.Data, true
}

// Set writes a value to both tiers.
//
// The external write is best effort and goes first; its failure is absorbed
// and never blocks the authoritative in-process write. TTL can be overridden
// per call with WithTTL.
func (m *Manager) Set(ctx context.Context, key string, value interface{}) error {
	hashed := HashKey(key)

	ttl := TTL(ctx)
	if ttl == DefaultTTL {
		ttl = m.config.TimeToLive
	}

	if m.remote != nil && m.RemoteAvailable() {
		m.remoteSet(ctx, hashed, value, ttl)
	}

	return m.local.Write(WithTTL(ctx, ttl), hashed, value)
}

func (m *Manager) remoteSet(ctx context.Context, hashed string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		m.remoteError(ctx, "encode", err)

		return
	}

	env, err := json.Marshal(envelope{
		Data:      data,
		WrittenAt: m.now().UnixMilli(),
		TTLMs:     ttl.Milliseconds(),
	})
	if err != nil {
		m.remoteError(ctx, "encode", err)

		return
	}

	if err := m.remote.Set(ctx, hashed, string(env), ttl); err != nil {
		m.remoteError(ctx, "set", err)
	}
}

// Delete removes a logical key from both tiers, true if either tier held it.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	hashed := HashKey(key)
	removed := false

	if m.remote != nil && m.RemoteAvailable() {
		ok, err := m.remote.Delete(ctx, hashed)
		if err != nil {
			m.remoteError(ctx, "delete", err)
		} else if ok {
			removed = true
		}
	}

	if m.local.Delete(hashed) {
		removed = true
	}

	if removed && m.stat != nil {
		m.stat.Add(ctx, MetricDelete, 1, "name", m.config.Name)
	}

	return removed
}

// Clear flushes both tiers unconditionally.
func (m *Manager) Clear(ctx context.Context) {
	if m.remote != nil && m.RemoteAvailable() {
		if err := m.remote.Flush(ctx); err != nil {
			m.remoteError(ctx, "flush", err)
		}
	}

	m.local.RemoveAll()
}

// Exists reports whether a live entry exists in either tier.
func (m *Manager) Exists(ctx context.Context, key string) bool {
	hashed := HashKey(key)

	if m.remote != nil && m.RemoteAvailable() {
		ok, err := m.remote.Exists(ctx, hashed)
		if err != nil {
			m.remoteError(ctx, "exists", err)
		} else if ok {
			return true
		}
	}

	return m.local.Exists(hashed)
}

// Keys returns hashed keys of both tiers matching a glob pattern.
func (m *Manager) Keys(ctx context.Context, pattern string) []string {
	seen := map[string]bool{}

	for _, k := range m.local.Keys(pattern) {
		seen[k] = true
	}

	if m.remote != nil && m.RemoteAvailable() {
		keys, err := m.remote.Keys(ctx, pattern)
		if err != nil {
			m.remoteError(ctx, "keys", err)
		}

		for _, k := range keys {
			seen[k] = true
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// GetStats returns a counters snapshot.
func (m *Manager) GetStats() Stats {
	hits := int(m.hits.Load())
	misses := int(m.misses.Load())

	s := Stats{
		Hits:   hits,
		Misses: misses,
		Size:   m.local.Len(),
	}

	if hits+misses > 0 {
		s.HitRate = float64(hits) / float64(hits+misses)
	}

	return s
}

// RemoteAvailable reports whether the external tier is believed reachable.
func (m *Manager) RemoteAvailable() bool {
	return m.remote != nil && m.remoteUp.Load()
}

// HealthCheck probes the external tier and updates its availability flag.
//
// A failed probe disables external calls until a later probe succeeds; the
// in-process tier is always healthy, so the manager itself never fails here.
// Returned value reports external tier reachability.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	if m.remote == nil {
		return false
	}

	if err := m.remote.Ping(ctx); err != nil {
		m.remoteUp.Store(false)

		if m.log != nil {
			m.log.Warn(ctx, "remote cache store unreachable",
				"name", m.config.Name,
				"error", err)
		}

		if m.stat != nil {
			m.stat.Add(ctx, MetricRemoteError, 1, "name", m.config.Name, "op", "ping")
		}

		return false
	}

	m.remoteUp.Store(true)

	return true
}

// Load returns a cached value of type T or builds and caches a fresh one.
//
// With ManagerConfig.CoalesceLoads enabled, concurrent misses for one key
// share a single build.
func Load[T any](ctx context.Context, m *Manager, key string, build func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if val, ok := Get[T](ctx, m, key); ok {
		return val, nil
	}

	do := func() (T, error) {
		val, err := build(ctx)
		if err != nil {
			return zero, err
		}

		if err := m.Set(ctx, key, val); err != nil && m.log != nil {
			m.log.Warn(ctx, "failed to cache built value",
				"name", m.config.Name,
				"key", key,
				"error", err)
		}

		return val, nil
	}

	if !m.config.CoalesceLoads {
		return do()
	}

	val, err, _ := m.group.Do(key, func() (interface{}, error) {
		// Re-check after acquiring the flight, an earlier flight may have cached.
		if val, ok := Get[T](ctx, m, key); ok {
			return val, nil
		}

		return do()
	})
	if err != nil {
		return zero, err
	}

	typed, ok := val.(T)
	if !ok {
		return zero, ctxd.WrapError(ctx, ErrTypeMismatch, "shared load result",
			"name", m.config.Name, "key", key)
	}

	return typed, nil
}

func (m *Manager) remoteError(ctx context.Context, op string, err error) {
	if m.log != nil {
		m.log.Warn(ctx, "remote cache store operation failed",
			"name", m.config.Name,
			"op", op,
			"error", err)
	}

	if m.stat != nil {
		m.stat.Add(ctx, MetricRemoteError, 1, "name", m.config.Name, "op", op)
	}
}
