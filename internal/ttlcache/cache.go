// Package ttlcache provides a small in-memory cache whose entries expire a
// fixed time after they are stored.
package ttlcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache maps string keys to values for a fixed TTL. Reads take a shared lock;
// writes are serialized.
type Cache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[V]
}

// New creates a cache. A non-positive ttl disables caching: Store is a no-op.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// WithClock overrides the time source; intended for tests.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	if now != nil {
		c.now = now
	}
	return c
}

// Lookup returns the live value for key.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Store records value under key until the TTL elapses.
func (c *Cache[V]) Store(key string, value V) {
	if c.ttl <= 0 || key == "" {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expires: now.Add(c.ttl)}
	// Opportunistic eviction keeps long-running daemons bounded.
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

// Remove drops key if present.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Count returns the number of live entries.
func (c *Cache[V]) Count() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}
