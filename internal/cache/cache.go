// Package cache provides an in-memory TTL cache with hit/miss accounting.
// It sits between live edits and the persistence/sync layers, absorbing
// repeated reads of content that has not changed.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Stats holds cache effectiveness counters.
type Stats struct {
	// Hits is the number of Get calls that returned a live entry.
	Hits uint64

	// Misses is the number of Get calls that found nothing, including
	// entries that had expired.
	Misses uint64

	// Entries is the number of entries currently held, expired or not.
	Entries int
}

// HitRate returns hits/(hits+misses), or 0 before any lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// TTLCache is a string-keyed cache where every entry carries its own
// expiry. Entries are evicted lazily on expired reads or explicitly via
// Sweep; nothing outlives the process.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   clockwork.Clock
	hits    uint64
	misses  uint64
}

// New creates an empty cache. A nil clock defaults to the real clock.
func New(clock clockwork.Clock) *TTLCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TTLCache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

// Set stores value under key until now+ttl, replacing any previous entry.
// A non-positive ttl stores nothing.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
}

// Get returns the live value for key. An expired entry counts as a miss
// and is evicted on the spot.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.value, true
}

// Delete removes an entry. Absent keys are a no-op.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep evicts all expired entries and returns how many were removed.
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns a point-in-time copy of the cache counters.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
