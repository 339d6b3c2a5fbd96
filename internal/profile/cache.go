package profile

import (
	"maps"
	"sync"
	"time"
)

type cacheEntry struct {
	attrs   map[string]string
	expires time.Time
}

// ttlCache holds enrichment results for a fixed time per user.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newTTLCache(ttl time.Duration, now func() time.Time) *ttlCache {
	return &ttlCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func (c *ttlCache) get(key string) (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return maps.Clone(e.attrs), true
}

func (c *ttlCache) put(key string, attrs map[string]string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{attrs: maps.Clone(attrs), expires: c.now().Add(c.ttl)}
}
