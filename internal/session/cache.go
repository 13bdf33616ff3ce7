package session

import (
	"sync"
	"time"
)

type cacheEntry struct {
	principal Principal
	expiresAt time.Time
}

// principalCache is a bounded TTL cache in front of the durable session
// lookup. Entries expire at the earlier of the cache TTL and the session's
// own expiry.
type principalCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int
}

func newPrincipalCache(ttl time.Duration, maxSize int) *principalCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &principalCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

func (c *principalCache) get(key string, now time.Time) (Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Principal{}, false
	}
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		return Principal{}, false
	}
	return e.principal, true
}

func (c *principalCache) put(key string, p Principal, sessionExpiry, now time.Time) {
	expires := now.Add(c.ttl)
	if sessionExpiry.Before(expires) {
		expires = sessionExpiry
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{principal: p, expiresAt: expires}
	if len(c.entries) > c.maxSize {
		c.prune(now)
	}
}

// prune drops expired entries first, then arbitrary entries until the
// cache fits. Caller holds the lock.
func (c *principalCache) prune(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	for k := range c.entries {
		if len(c.entries) <= c.maxSize {
			break
		}
		delete(c.entries, k)
	}
}
