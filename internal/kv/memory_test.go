package kv

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_SetGetExpiry(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	m := NewMemory(WithClock(clk.Now))
	ctx := context.Background()

	require.True(t, m.Set(ctx, "k", "v", WithExpiry(10*time.Second)))
	v, ok := m.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "v", v.String())

	clk.Advance(9 * time.Second)
	_, ok = m.Get(ctx, "k")
	require.True(t, ok, "entry must survive inside its window")

	clk.Advance(time.Second)
	_, ok = m.Get(ctx, "k")
	require.False(t, ok, "entry must be gone once the window elapsed")
	require.Empty(t, m.entries, "expired entry is dropped on read")
}

func TestMemory_SetWithoutExpiryPersists(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	m := NewMemory(WithClock(clk.Now))
	ctx := context.Background()

	m.Set(ctx, "flag", "0")
	clk.Advance(365 * 24 * time.Hour)
	v, ok := m.Get(ctx, "flag")
	require.True(t, ok)
	require.Equal(t, "0", v.String())
}

func TestMemory_IncrMonotonicWithinWindow(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	m := NewMemory(WithClock(clk.Now))
	ctx := context.Background()

	for i := int64(1); i <= 7; i++ {
		require.Equal(t, i, m.Incr(ctx, "absent"))
	}

	m.Set(ctx, "win", "1", WithExpiry(time.Minute))
	require.Equal(t, int64(2), m.Incr(ctx, "win"))
	require.Equal(t, int64(3), m.Incr(ctx, "win"))

	clk.Advance(59 * time.Second)
	require.Equal(t, int64(4), m.Incr(ctx, "win"), "incr keeps the original deadline")

	clk.Advance(time.Second)
	require.Equal(t, int64(1), m.Incr(ctx, "win"), "incr on expired entry restarts at 1")
}

func TestMemory_IncrNonInteger(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "s", "abc")
	require.Equal(t, int64(0), m.Incr(ctx, "s"))
	v, _ := m.Get(ctx, "s")
	require.Equal(t, "abc", v.String())
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	m := NewMemory(WithClock(clk.Now))
	ctx := context.Background()

	require.Equal(t, int64(0), m.Delete(ctx, "nope"))
	m.Set(ctx, "k", "1")
	require.Equal(t, int64(1), m.Delete(ctx, "k"))
	require.Equal(t, int64(0), m.Delete(ctx, "k"))

	m.Set(ctx, "e", "1", WithExpiry(time.Second))
	clk.Advance(2 * time.Second)
	require.Equal(t, int64(0), m.Delete(ctx, "e"), "expired entries count as absent")
}

func TestMemory_SweepLocked(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	m := NewMemory(WithClock(clk.Now))
	ctx := context.Background()

	m.Set(ctx, "a", "1", WithExpiry(time.Second))
	m.Set(ctx, "b", "1", WithExpiry(time.Hour))
	m.Set(ctx, "c", "1")
	clk.Advance(time.Minute)

	m.mu.Lock()
	removed := m.sweepLocked(clk.Now())
	m.mu.Unlock()
	require.Equal(t, 1, removed)
	require.Len(t, m.entries, 2)
}

func TestMemory_WritesSweepUnreadKeys(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	m := NewMemory(WithClock(clk.Now), WithSweepEvery(4))
	ctx := context.Background()

	m.Set(ctx, "ip-1", "1", WithExpiry(time.Second))
	m.Set(ctx, "ip-2", "1", WithExpiry(time.Second))
	m.Incr(ctx, "ip-3")
	require.Len(t, m.entries, 3)

	clk.Advance(time.Minute)
	m.Set(ctx, "ip-4", "1", WithExpiry(time.Hour))
	require.Len(t, m.entries, 2, "the fourth write sweeps the two expired keys")
	require.Contains(t, m.entries, "ip-3")
	require.Contains(t, m.entries, "ip-4")

	for i := range 4000 {
		m.Set(ctx, "burst-"+strconv.Itoa(i), "1", WithExpiry(time.Second))
		clk.Advance(time.Second)
	}
	require.LessOrEqual(t, len(m.entries), 8, "keys written once and never read stay bounded")
}

func TestMemory_ConcurrentIncr(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(100)
	for range 100 {
		go func() {
			defer wg.Done()
			m.Incr(ctx, "c")
		}()
	}
	wg.Wait()

	v, ok := m.Get(ctx, "c")
	require.True(t, ok)
	n, ok := v.Int()
	require.True(t, ok)
	require.Equal(t, int64(100), n)
}

func TestExpirySeconds(t *testing.T) {
	t.Parallel()
	require.Equal(t, int64(0), expirySeconds(0))
	require.Equal(t, int64(1), expirySeconds(10*time.Millisecond))
	require.Equal(t, int64(60), expirySeconds(time.Minute))
	require.Equal(t, int64(61), expirySeconds(time.Minute+time.Millisecond))
}
