package cache

import (
	"errors"
	"sync/atomic"
	"time"
)

// LayeredCache serves from memory, then disk. Disk hits are copied into
// memory so a long run reads each NASA response from disk at most once.
type LayeredCache struct {
	memory Cache
	disk   *DiskCache

	memoryHits atomic.Int64
	diskHits   atomic.Int64
	misses     atomic.Int64
}

// NewLayeredCache creates a memory layer with memoryTTL over a disk layer in
// diskDir with diskTTL.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		return val, true
	}
	if val, ok := c.disk.Get(key); ok {
		c.diskHits.Add(1)
		_ = c.memory.Set(key, val, 0)
		return val, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set writes both layers. The memory entry survives a disk failure.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

func (c *LayeredCache) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}

// Stats reports lookups per layer since creation.
func (c *LayeredCache) Stats() Stats {
	return Stats{
		MemoryHits: c.memoryHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Misses:     c.misses.Load(),
	}
}

// Prune sweeps the disk layer. Memory entries expire on their own.
func (c *LayeredCache) Prune(now time.Time) (int, error) {
	return c.disk.Prune(now)
}
