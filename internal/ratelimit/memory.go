package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries is the counter table size above which expired entries
// are swept.
const DefaultMaxEntries = 10000

type counter struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window store.
type Memory struct {
	mu         sync.Mutex
	counters   map[string]*counter
	maxEntries int
	now        func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMaxEntries sets the sweep threshold.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		counters:   make(map[string]*counter),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hit implements Store. It never returns an error.
func (m *Memory) Hit(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.counters) > m.maxEntries {
		m.sweepLocked(now)
	}

	c, ok := m.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		m.counters[key] = c
	}
	c.count++

	res := Result{
		Allowed:   c.count <= limit,
		Limit:     limit,
		Remaining: max(limit-c.count, 0),
		ResetAt:   c.resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = c.resetAt.Sub(now)
	}
	return res, nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

func (m *Memory) sweepLocked(now time.Time) {
	for key, c := range m.counters {
		if !now.Before(c.resetAt) {
			delete(m.counters, key)
		}
	}
}
