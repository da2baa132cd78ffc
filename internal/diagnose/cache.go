package diagnose

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

const (
	defaultCacheTTL     = 30 * time.Second
	defaultCacheEntries = 256
)

type cacheEntry struct {
	result    shared.DiagnosticResult
	timestamp time.Time
}

// Cache memoizes diagnostic results for a short TTL. It is an explicitly
// constructed instance handed to whoever needs it; lifecycle is New at
// application start and Clear at sign-out.
//
// Reads do not evict stale entries; the sweep on Put removes them.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	metrics *Metrics
	now     func() time.Time
}

// NewCache builds a diagnostic cache with the given TTL. A non-positive
// TTL falls back to 30 seconds.
func NewCache(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	entries, err := lru.New[string, cacheEntry](defaultCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("new diagnostic cache: %w", err)
	}
	return &Cache{
		entries: entries,
		ttl:     ttl,
		metrics: GetMetrics(),
		now:     time.Now,
	}, nil
}

// Get returns the cached result for key, or nil when the entry is absent
// or older than the TTL. A stale entry is left in place for the next sweep.
func (c *Cache) Get(key string) *shared.DiagnosticResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		c.metrics.RecordCacheLookup(false)
		return nil
	}
	c.metrics.RecordCacheLookup(true)
	result := entry.result
	return &result
}

// Put stores the result under key and sweeps out every entry older than
// the TTL.
func (c *Cache) Put(key string, result shared.DiagnosticResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries.Add(key, cacheEntry{result: result, timestamp: now})

	for _, existing := range c.entries.Keys() {
		entry, ok := c.entries.Peek(existing)
		if ok && now.Sub(entry.timestamp) >= c.ttl {
			c.entries.Remove(existing)
		}
	}
}

// Clear empties the cache unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of entries currently held, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
