package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(cfg)
	l.now = clock.now
	return l, clock
}

func TestBurstThenBlock(t *testing.T) {
	l, _ := newTestLimiter(DefaultConfig())
	defer l.Close()

	for i := 0; i < 5; i++ {
		res := l.Check("user-1")
		require.True(t, res.Allowed, "call %d should be allowed", i+1)
	}

	res := l.Check("user-1")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, res.RetryAfterSeconds, 60)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{Capacity: 1, RefillRate: 1, Window: time.Minute})
	defer l.Close()

	require.True(t, l.Check("a").Allowed)
	assert.False(t, l.Check("a").Allowed)
	assert.True(t, l.Check("b").Allowed)
}

func TestRefillAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(DefaultConfig())
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.True(t, l.Check("k").Allowed)
	}
	require.False(t, l.Check("k").Allowed)

	clock.advance(61 * time.Second)
	assert.True(t, l.Check("k").Allowed)
}

func TestNoRefillWithinPartialWindow(t *testing.T) {
	cfg := Config{Capacity: 2, RefillRate: 2, Window: time.Minute}
	l, clock := newTestLimiter(cfg)
	defer l.Close()

	require.True(t, l.Check("k").Allowed)
	require.True(t, l.Check("k").Allowed)

	clock.advance(20 * time.Second)
	res := l.Check("k")
	assert.False(t, res.Allowed)
	// 40s of the window remain.
	assert.Equal(t, 40, res.RetryAfterSeconds)
}

// Denied calls must not advance lastRefill: elapsed time keeps accumulating
// against the same reference point, so a key denied mid-window still refills
// once the full window has passed since the last actual refill.
func TestDenialsDoNotResetRefillClock(t *testing.T) {
	cfg := Config{Capacity: 2, RefillRate: 2, Window: time.Minute}
	l, clock := newTestLimiter(cfg)
	defer l.Close()

	require.True(t, l.Check("k").Allowed)
	require.True(t, l.Check("k").Allowed)

	// 20s in: floor(2 * 20/60) = 0 tokens, denied, lastRefill untouched.
	clock.advance(20 * time.Second)
	require.False(t, l.Check("k").Allowed)

	// 61s total since the last refill: floor(2 * 61/60) = 2 tokens.
	clock.advance(41 * time.Second)
	assert.True(t, l.Check("k").Allowed)
}

func TestSweepEvictsStaleBuckets(t *testing.T) {
	l, clock := newTestLimiter(DefaultConfig())
	defer l.Close()

	l.Check("stale")
	clock.advance(10 * time.Minute)
	l.Check("fresh")

	l.sweepOnce(clock.now().Add(-staleAfterWindows * time.Minute))

	l.mu.Lock()
	_, staleExists := l.buckets["stale"]
	_, freshExists := l.buckets["fresh"]
	l.mu.Unlock()

	assert.False(t, staleExists)
	assert.True(t, freshExists)
}
