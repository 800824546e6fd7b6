package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// defaultSweepEvery is how many writes pass between full expiry sweeps.
const defaultSweepEvery = 1024

// Memory is an in-process Store with lazy per-key expiry. Every sweepEvery writes
// the whole map is scanned for expired entries, so keys that are never read again
// do not accumulate.
//
// It is safe for concurrent use by multiple goroutines, but its state is local to
// the process: it is neither durable nor shared between replicas. Use the REST or
// Redis store when several instances must enforce one limit.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	clock      func() time.Time
	writes     int
	sweepEvery int
}

// MemoryOption customises a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source, mostly for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithSweepEvery sets how many writes pass between expiry sweeps. Values below one
// are ignored.
func WithSweepEvery(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.sweepEvery = n
		}
	}
}

// NewMemory constructs an empty Memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]entry),
		clock:      time.Now,
		sweepEvery: defaultSweepEvery,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// lookupLocked returns the live entry for key, dropping it if expired.
func (m *Memory) lookupLocked(key string, now time.Time) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(now) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key, m.clock())
	if !ok {
		return "", false
	}
	return Value(e.value), true
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string, opts ...SetOption) bool {
	o := applySetOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	e := entry{value: value}
	if o.expiry > 0 {
		e.expiresAt = now.Add(o.expiry)
	}
	m.entries[key] = e
	m.wroteLocked(now)
	return true
}

// Incr implements Store. The deadline of a live entry is preserved.
func (m *Memory) Incr(_ context.Context, key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	e, ok := m.lookupLocked(key, now)
	if !ok {
		m.entries[key] = entry{value: "1"}
		m.wroteLocked(now)
		return 1
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		// Redis rejects INCR on non-integers; mirror that as a failed increment.
		return 0
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.entries[key] = e
	m.wroteLocked(now)
	return n
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookupLocked(key, m.clock()); !ok {
		return 0
	}
	delete(m.entries, key)
	return 1
}

// wroteLocked counts a write and sweeps once every sweepEvery writes.
func (m *Memory) wroteLocked(now time.Time) {
	m.writes++
	if m.writes < m.sweepEvery {
		return
	}
	m.writes = 0
	m.sweepLocked(now)
}

// sweepLocked drops every expired entry and returns how many were removed.
func (m *Memory) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
