// Package cache is a generic in-memory TTL cache with an optional size
// bound.
//
// Entries expire after the TTL; expired entries are never returned and are
// physically removed by a background sweep. When a capacity is set, an
// insert into a full cache evicts the entry closest to expiry first.
//
// Safe for concurrent use.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache maps K to V with per-entry expiry.
//
//	c := cache.New[string, []string](30*time.Second, time.Minute, 1024)
//	c.Set("room-1", speakers)
//	v, ok := c.Get("room-1")
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]entry[V]
	ttl        time.Duration
	maxEntries int // 0 = unbounded

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New creates a cache and starts its sweep goroutine. cleanupInterval
// should be shorter than ttl. maxEntries <= 0 disables the bound.
func New[K comparable, V any](ttl, cleanupInterval time.Duration, maxEntries int) *TTLCache[K, V] {
	if maxEntries < 0 {
		maxEntries = 0
	}
	c := &TTLCache[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		maxEntries:  maxEntries,
		stopCleanup: make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.stopCleanup:
				return
			}
		}
	}()

	return c
}

// Get returns the value for key if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with a fresh TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.makeRoom(now)
	}

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: now.Add(c.ttl),
	}
}

// makeRoom drops expired entries, and if the cache is still full, the one
// expiring soonest. Caller holds the write lock.
func (c *TTLCache[K, V]) makeRoom(now time.Time) {
	var (
		victim    K
		victimExp time.Time
		found     bool
	)
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if !found || e.expiresAt.Before(victimExp) {
			victim, victimExp, found = key, e.expiresAt, true
		}
	}
	if len(c.entries) >= c.maxEntries && found {
		delete(c.entries, victim)
	}
}

// Delete removes key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// DeleteFunc removes every key for which predicate returns true.
func (c *TTLCache[K, V]) DeleteFunc(predicate func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if predicate(key) {
			delete(c.entries, key)
		}
	}
}

// Clear empties the cache.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]entry[V])
}

// Len counts stored entries, expired ones included.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *TTLCache[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TTLCache[K, V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
