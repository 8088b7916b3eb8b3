package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// MemoryConfig controls in-process cache store instance.
type MemoryConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is store instance name, used in stats and logging.
	Name string

	// TimeToLive is delay before entry expiration, default 5m.
	TimeToLive time.Duration

	// MaxEntries bounds the number of stored entries, default 1000.
	// Every write over the bound triggers eviction.
	MaxEntries int

	// Now is a time source, default time.Now.
	Now func() time.Time
}

// Memory is a bounded in-process cache store.
//
// It is the authoritative tier of a Manager and is defined as always healthy.
type Memory struct {
	sync.RWMutex
	data map[string]Entry[any]

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
	now    func() time.Time
}

// NewMemory creates an instance of in-process store with optional configuration.
func NewMemory(cfg ...MemoryConfig) *Memory {
	config := MemoryConfig{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.MaxEntries == 0 {
		config.MaxEntries = 1000
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	return &Memory{
		data:   map[string]Entry[any]{},
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
		now:    config.Now,
	}
}

// Read gets value.
//
// An expired entry is purged and reported as ErrExpired.
func (c *Memory) Read(ctx context.Context, k string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrNotFound
	}

	c.RLock()
	e, ok := c.data[k]
	c.RUnlock()

	if !ok {
		if c.log != nil {
			c.log.Debug(ctx, "cache miss",
				"name", c.config.Name,
				"key", k)
		}

		if c.stat != nil {
			c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)
		}

		return nil, ErrNotFound
	}

	if !e.Live(c.now()) {
		c.purge(k, e.WrittenAt)

		if c.log != nil {
			c.log.Debug(ctx, "cache key expired",
				"name", c.config.Name,
				"key", k)
		}

		if c.stat != nil {
			c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)
		}

		return nil, ErrExpired
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)
	}

	if c.log != nil {
		c.log.Debug(ctx, "cache hit",
			"name", c.config.Name,
			"key", k)
	}

	return e.Data, nil
}

// purge removes an entry unless it was rewritten since it was read.
func (c *Memory) purge(k string, writtenAt time.Time) {
	c.Lock()
	if cur, ok := c.data[k]; ok && cur.WrittenAt.Equal(writtenAt) {
		delete(c.data, k)
	}
	c.Unlock()
}

// Write sets value, refreshing the entry age, then enforces the size bound.
func (c *Memory) Write(ctx context.Context, k string, v interface{}) error {
	c.Lock()
	defer c.Unlock()

	ttl := TTL(ctx)
	if ttl == DefaultTTL {
		ttl = c.config.TimeToLive
	}

	c.data[k] = Entry[any]{Data: v, WrittenAt: c.now(), TTL: ttl}

	if c.log != nil {
		c.log.Debug(ctx, "wrote to cache", "name", c.config.Name, "key", k, "ttl", ttl)
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)
	}

	c.evictOverBound(ctx)

	return nil
}

// Delete removes an entry, reporting whether it was present.
func (c *Memory) Delete(k string) bool {
	c.Lock()
	defer c.Unlock()

	_, ok := c.data[k]
	if ok {
		delete(c.data, k)
	}

	return ok
}

// Exists reports whether a live entry is present.
func (c *Memory) Exists(k string) bool {
	c.RLock()
	e, ok := c.data[k]
	c.RUnlock()

	return ok && e.Live(c.now())
}

// Keys returns stored keys matching a glob pattern, empty pattern matches all.
func (c *Memory) Keys(pattern string) []string {
	c.RLock()
	defer c.RUnlock()

	keys := make([]string, 0, len(c.data))

	for k := range c.data {
		if pattern != "" {
			if ok, err := path.Match(pattern, k); err != nil || !ok {
				continue
			}
		}

		keys = append(keys, k)
	}

	return keys
}

// RemoveAll deletes all entries.
func (c *Memory) RemoveAll() {
	c.Lock()
	c.data = make(map[string]Entry[any])
	c.Unlock()
}

// Len returns number of elements in cache.
func (c *Memory) Len() int {
	c.RLock()
	cnt := len(c.data)
	c.RUnlock()

	return cnt
}

// Walk calls function for every entry and fails on first error returned.
//
// Count of processed entries is returned.
func (c *Memory) Walk(walkFn func(key string, e Entry[any]) error) (int, error) {
	c.RLock()
	defer c.RUnlock()

	n := 0

	for k, v := range c.data {
		if err := walkFn(k, v); err != nil {
			return n, err
		}

		n++
	}

	return n, nil
}
