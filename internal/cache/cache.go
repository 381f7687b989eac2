// SPDX-License-Identifier: MIT

// Package cache provides a thread-safe key/value cache with TTL support,
// with in-memory, Redis-backed and no-op implementations.
package cache

import (
	"sync"
	"time"
)

// Cache provides thread-safe caching with expiration support.
type Cache interface {
	// Get retrieves a value from the cache. Returns false if not found or expired.
	Get(key string) (any, bool)
	// Set stores a value in the cache with the specified TTL.
	Set(key string, value any, ttl time.Duration)
	// Delete removes a value from the cache.
	Delete(key string)
	// Clear removes all values from the cache.
	Clear()
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance metrics.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	value      any
	expiration time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiration)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
}

// NewMemory creates an in-memory cache. A positive cleanupInterval starts a
// background goroutine that prunes expired entries; call Stop to end it.
func NewMemory(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{inner: &memoryCache{entries: make(map[string]*entry)}}
	if cleanupInterval > 0 {
		c.inner.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.inner.janitor.run(c.inner)
	}
	return c
}

// MemoryCache wraps the in-memory implementation and exposes Stop for the
// janitor goroutine.
type MemoryCache struct {
	inner *memoryCache
}

func (c *MemoryCache) Get(key string) (any, bool)                 { return c.inner.get(key) }
func (c *MemoryCache) Set(key string, v any, ttl time.Duration)   { c.inner.set(key, v, ttl) }
func (c *MemoryCache) Delete(key string)                          { c.inner.delete(key) }
func (c *MemoryCache) Clear()                                     { c.inner.clear() }
func (c *MemoryCache) Stats() Stats                               { return c.inner.statsCopy() }

// Stop ends the background cleanup goroutine, if any.
func (c *MemoryCache) Stop() {
	if c.inner.janitor != nil {
		close(c.inner.janitor.stop)
	}
}

func (c *memoryCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.isExpired() {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiration: time.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) statsCopy() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if e.isExpired() {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

type noOpCache struct{}

// NewNoOp creates a cache that doesn't cache anything.
func NewNoOp() Cache {
	return noOpCache{}
}

func (noOpCache) Get(string) (any, bool)              { return nil, false }
func (noOpCache) Set(string, any, time.Duration)      {}
func (noOpCache) Delete(string)                       {}
func (noOpCache) Clear()                              {}
func (noOpCache) Stats() Stats                        { return Stats{} }
