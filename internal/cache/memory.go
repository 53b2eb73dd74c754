package cache

import (
	"bytes"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache holds responses for the lifetime of the process. Values are
// copied in and out so callers may modify what they get.
type MemoryCache struct {
	items *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a go-cache backed store; expired entries are swept
// every cleanupInterval.
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if val, ok := c.items.Get(key); ok {
		if b, ok := val.([]byte); ok {
			c.hits.Add(1)
			return bytes.Clone(b), true
		}
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores a copy of value. A zero ttl uses the default.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(key, bytes.Clone(value), ttl)
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

func (c *MemoryCache) Stats() Stats {
	return Stats{MemoryHits: c.hits.Load(), Misses: c.misses.Load()}
}
