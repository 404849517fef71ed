package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/linkpeek/linkpeek/internal/cache"
)

// Redis is a Store shared by every instance pointing at the same Redis.
type Redis struct {
	cache *cache.Cache
}

// NewRedis wraps a cache client.
func NewRedis(c *cache.Cache) *Redis {
	return &Redis{cache: c}
}

// Hit implements Store. On Redis failure the returned result allows the
// request and the error is reported for logging.
func (r *Redis) Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	res, err := r.cache.HitFixedWindow(ctx, key, limit, window)
	out := Result{
		Allowed:    res.Allowed,
		Limit:      limit,
		Remaining:  int(res.Remaining),
		ResetAt:    res.ResetAt,
		RetryAfter: res.RetryAfter,
	}
	if err != nil {
		return out, fmt.Errorf("redis rate limit: %w", err)
	}
	return out, nil
}
