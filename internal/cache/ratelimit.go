package cache

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const rateLimitPrefix = "linkpeek:rl:"

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// fixedWindowScript counts a hit and returns the count and the window's
// remaining lifetime in milliseconds. The expiry is set only by the first hit
// so the window resets wholesale.
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local window_ms = tonumber(ARGV[1])

	local count = redis.call('INCR', key)
	if count == 1 then
		redis.call('PEXPIRE', key, window_ms)
	end

	local ttl = redis.call('PTTL', key)
	if ttl < 0 then
		redis.call('PEXPIRE', key, window_ms)
		ttl = window_ms
	end

	return {count, ttl}
`)

// HitFixedWindow records one hit against key and reports whether it is
// within limit for the current window. On Redis errors it fails open and
// returns the error alongside an allowing result.
func (c *Cache) HitFixedWindow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()

	result, err := fixedWindowScript.Run(ctx, c.client,
		[]string{rateLimitPrefix + hashKey(key)},
		window.Milliseconds(),
	).Int64Slice()
	if err != nil || len(result) != 2 {
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(limit),
			ResetAt:   now.Add(window),
		}, err
	}

	count := result[0]
	resetAt := now.Add(time.Duration(result[1]) * time.Millisecond)

	res := &RateLimitResult{
		Allowed:   count <= int64(limit),
		Count:     count,
		Remaining: max(int64(limit)-count, 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res, nil
}

// hashKey keeps the key's kind prefix readable and hashes the identifier so
// raw IP addresses are never stored.
func hashKey(key string) string {
	kind, id, found := strings.Cut(key, ":")
	if !found {
		kind, id = "", key
	}
	sum := blake2b.Sum256([]byte(id))
	hashed := hex.EncodeToString(sum[:8])
	if kind == "" {
		return hashed
	}
	return kind + ":" + hashed
}
