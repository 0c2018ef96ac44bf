// Package dedup suppresses re-delivery of notifications the platform
// listener yields more than once.
package dedup

import (
	"sort"
	"time"
)

const (
	// DefaultMaxAge ages out entries nobody will ever match again.
	DefaultMaxAge = 24 * time.Hour
	// DefaultMaxSize hard-caps memory regardless of notification volume.
	DefaultMaxSize = 2000
)

// Cache is a bounded set of already-observed notification identities.
// It is owned by the bridge loop and never accessed concurrently.
type Cache struct {
	entries map[string]time.Time
}

func NewCache() *Cache {
	return &Cache{entries: map[string]time.Time{}}
}

// Seen reports whether key was marked before.
func (c *Cache) Seen(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Mark records key at the given time. Idempotent; a repeat refreshes the
// timestamp.
func (c *Cache) Mark(key string, now time.Time) {
	c.entries[key] = now
}

func (c *Cache) Len() int { return len(c.entries) }

// Prune removes entries older than maxAge, then evicts the globally oldest
// entries until the cache is at or below maxSize. Called once per loop
// iteration, not per record.
func (c *Cache) Prune(now time.Time, maxAge time.Duration, maxSize int) {
	for key, ts := range c.entries {
		if now.Sub(ts) > maxAge {
			delete(c.entries, key)
		}
	}
	if maxSize <= 0 || len(c.entries) <= maxSize {
		return
	}

	type entry struct {
		key string
		ts  time.Time
	}
	all := make([]entry, 0, len(c.entries))
	for key, ts := range c.entries {
		all = append(all, entry{key, ts})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	excess := len(c.entries) - maxSize
	for i := 0; i < excess; i++ {
		delete(c.entries, all[i].key)
	}
}
