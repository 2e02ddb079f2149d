// Package ratelimit implements a per-key token bucket with lazy refill.
//
// Refill happens in a single burst once a full window has elapsed since the
// last refill, not as a smooth leak. Because lastRefill only advances when
// tokens are actually added, a key that keeps getting denied accumulates
// elapsed time against the same lastRefill, so the eventual refill reflects
// total elapsed time rather than time since the last denied call.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds the bucket parameters.
type Config struct {
	// Capacity is the maximum number of tokens a bucket can hold.
	Capacity int
	// RefillRate is how many tokens are restored per full window.
	RefillRate int
	// Window is the refill window.
	Window time.Duration
}

// DefaultConfig allows 5 attempts per rolling minute per key.
func DefaultConfig() Config {
	return Config{Capacity: 5, RefillRate: 5, Window: time.Minute}
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed bool
	// RetryAfterSeconds is set on denial: whole seconds until the bucket
	// refills, rounded up.
	RetryAfterSeconds int
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// Limiter is a process-wide token bucket limiter. Construct one at startup
// and inject it; it is safe for concurrent use.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket

	now  func() time.Time
	stop chan struct{}
}

// New creates a Limiter and starts a background sweep that evicts buckets
// idle for several windows, so the key map does not grow without bound.
// Call Close to stop the sweep.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Check consumes one token for key if available.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		// First sight: the current request consumes one token implicitly.
		l.buckets[key] = &bucket{
			tokens:     l.cfg.Capacity - 1,
			lastRefill: now,
			lastSeen:   now,
		}
		return Result{Allowed: true}
	}
	b.lastSeen = now

	elapsed := now.Sub(b.lastRefill)
	tokensToAdd := int(float64(l.cfg.RefillRate) * (float64(elapsed) / float64(l.cfg.Window)))
	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, l.cfg.Capacity)
		b.lastRefill = now
		elapsed = 0
	}

	if b.tokens > 0 {
		b.tokens--
		return Result{Allowed: true}
	}

	remaining := l.cfg.Window - elapsed
	retryAfter := int((remaining + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Result{Allowed: false, RetryAfterSeconds: retryAfter}
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	close(l.stop)
}

const staleAfterWindows = 3

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweepOnce(l.now().Add(-time.Duration(staleAfterWindows) * l.cfg.Window))
		}
	}
}

func (l *Limiter) sweepOnce(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
