// Package ratelimit is an in-memory per-key limiter with a penalty
// cooldown, used to stop raise-hand spam.
//
// Within a window a key may act maxEvents times. The next event starts a
// cooldown during which everything is rejected; when the cooldown ends the
// window starts over.
//
// The package has no project-internal imports so both handlers and
// services can use it.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time // zero = not cooling down
}

// CooldownLimiter limits events per key.
//
//	limiter := ratelimit.NewCooldownLimiter(5, 10*time.Second, 30*time.Second)
//	if !limiter.Allow(userID) { return 429 }
type CooldownLimiter struct {
	mu        sync.RWMutex
	buckets   map[string]*bucket
	maxEvents int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewCooldownLimiter creates a limiter and starts its cleanup goroutine.
// maxEvents <= 0 disables limiting.
func NewCooldownLimiter(maxEvents int, window, cooldown time.Duration) *CooldownLimiter {
	rl := &CooldownLimiter{
		buckets:     make(map[string]*bucket),
		maxEvents:   maxEvents,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records an event for key and reports whether it is permitted.
func (rl *CooldownLimiter) Allow(key string) bool {
	if rl.maxEvents <= 0 {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() && now.Before(b.cooldownUntil) {
		return false
	}

	if !b.cooldownUntil.IsZero() {
		b.count = 1
		b.windowStart = now
		b.cooldownUntil = time.Time{}
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count > rl.maxEvents {
		b.cooldownUntil = now.Add(rl.cooldown)
		return false
	}

	return true
}

// RetryAfterSeconds is the remaining cooldown for key, rounded up, for the
// Retry-After header. 0 when not cooling down.
func (rl *CooldownLimiter) RetryAfterSeconds(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	b, exists := rl.buckets[key]
	if !exists || b.cooldownUntil.IsZero() {
		return 0
	}

	remaining := b.cooldownUntil.Sub(rl.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Stop ends the cleanup goroutine.
func (rl *CooldownLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *CooldownLimiter) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets whose window and cooldown have both passed.
func (rl *CooldownLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		windowExpired := now.Sub(b.windowStart) > rl.window
		cooldownExpired := b.cooldownUntil.IsZero() || now.After(b.cooldownUntil)

		if windowExpired && cooldownExpired {
			delete(rl.buckets, key)
		}
	}
}
