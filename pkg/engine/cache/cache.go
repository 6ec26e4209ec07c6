// Package cache implements the in-memory TTL cache backing the
// resolution engine. Entries are keyed by (data class, query key) and
// expire lazily on read, with a periodic sweep bounding memory.
package cache

import (
	"context"
	"sync"
	"time"

	"tc.com/token-prices/pkg/sources"
)

const (
	defaultSweepInterval = time.Minute
	defaultGracePeriod   = 5 * time.Minute
)

// Entry is a cached price result with its expiry.
type Entry struct {
	Result    sources.PriceResult
	ExpiresAt time.Time
	DataClass sources.DataClass
}

// Cache is a concurrency-safe expiring key/value store. Absence is
// reported via the ok bool, never an error.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	sweepInterval time.Duration
	grace         time.Duration

	now func() time.Time // overridable for tests
}

// Option configures a Cache.
type Option func(*Cache)

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepInterval = d }
}

// WithGracePeriod sets how long expired entries are retained for stale
// fallback before the sweep removes them.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Cache) { c.grace = d }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]Entry),
		sweepInterval: defaultSweepInterval,
		grace:         defaultGracePeriod,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key if present and unexpired.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.ExpiresAt) {
		return Entry{}, false
	}
	return entry, true
}

// GetStale returns the entry for key regardless of expiry, or ok=false
// if the key is absent entirely.
func (c *Cache) GetStale(key string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	return entry, ok
}

// Put stores a result under key, overwriting unconditionally.
func (c *Cache) Put(key string, result sources.PriceResult, class sources.DataClass, ttl time.Duration) {
	entry := Entry{
		Result:    result,
		ExpiresAt: c.now().Add(ttl),
		DataClass: class,
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Delete removes an entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes entries expired beyond the grace period and returns the
// number removed.
func (c *Cache) Sweep() int {
	cutoff := c.now().Add(-c.grace)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.ExpiresAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until the context is canceled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
