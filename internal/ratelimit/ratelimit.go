// Package ratelimit provides fixed-window request limiting behind a store
// abstraction.
//
// The in-memory store keeps counters per process, so with several instances
// each enforces its own budget and the effective limit scales with the
// instance count. Use the Redis store when a shared budget is required.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a single hit.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (r Result) RetryAfterSeconds() int {
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Store counts hits per key in fixed windows.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Limiter applies one budget to one class of keys.
type Limiter struct {
	store  Store
	prefix string
	limit  int
	window time.Duration
}

// NewLimiter creates a limiter allowing limit hits per window for keys
// of the form prefix:id.
func NewLimiter(store Store, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, prefix: prefix, limit: limit, window: window}
}

// Allow records a hit for id. Store errors are returned with an allowing
// result so callers can fail open.
func (l *Limiter) Allow(ctx context.Context, id string) (Result, error) {
	return l.store.Hit(ctx, l.prefix+":"+id, l.limit, l.window)
}

// Limit returns the configured budget.
func (l *Limiter) Limit() int {
	return l.limit
}
