package cache

import (
	"context"
	"sort"
	"time"
)

// evictOverBound enforces MaxEntries, called under write lock.
//
// Expired entries are reclaimed first; if the store is still over the bound,
// oldest-written live entries are dropped until the bound is met. The order
// is deterministic given entry write times.
func (c *Memory) evictOverBound(ctx context.Context) {
	if len(c.data) <= c.config.MaxEntries {
		return
	}

	evicted := 0
	now := c.now()

	for k, e := range c.data {
		if !e.Live(now) {
			delete(c.data, k)

			evicted++
		}
	}

	if over := len(c.data) - c.config.MaxEntries; over > 0 {
		type aged struct {
			key       string
			writtenAt time.Time
		}

		entries := make([]aged, 0, len(c.data))

		for k, e := range c.data {
			entries = append(entries, aged{key: k, writtenAt: e.WrittenAt})
		}

		// Oldest writes first.
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].writtenAt.Before(entries[j].writtenAt)
		})

		for i := 0; i < over; i++ {
			delete(c.data, entries[i].key)
		}

		evicted += over
	}

	if c.log != nil {
		c.log.Debug(ctx, "evicted cache entries",
			"name", c.config.Name,
			"count", evicted)
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricEvict, float64(evicted), "name", c.config.Name)
	}
}
