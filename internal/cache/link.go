package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linkpeek/linkpeek/internal/model"
)

// Cache key prefixes and TTLs.
const (
	linkKeyPrefix     = "linkpeek:link:"
	negCacheKeySuffix = ":neg"

	// DefaultLinkTTL is the TTL for cached link data. Short enough that a
	// destination edit made elsewhere propagates without explicit invalidation.
	DefaultLinkTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

func linkKey(linkID string) string {
	return linkKeyPrefix + linkID
}

// GetLink retrieves a link from cache by ID.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetLink(ctx context.Context, linkID string) (*model.Link, error) {
	res := c.client.HGetAll(ctx, linkKey(linkID))
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedLink
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("decode cached link: %w", err)
	}
	return cached.ToLink(linkID), nil
}

// SetLink stores a link in cache and clears any negative entry.
func (c *Cache) SetLink(ctx context.Context, link *model.Link) error {
	key := linkKey(link.ID)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, link.ToCachedLink())
	pipe.Expire(ctx, key, DefaultLinkTTL)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}
	return nil
}

// DeleteLink removes a link from cache.
func (c *Cache) DeleteLink(ctx context.Context, linkID string) error {
	key := linkKey(linkID)
	if err := c.client.Del(ctx, key, key+negCacheKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete link from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if a link ID is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, linkID string) (bool, error) {
	exists, err := c.client.Exists(ctx, linkKey(linkID)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return exists > 0, nil
}

// SetNegativeCache marks a link ID as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, linkID string) error {
	if err := c.client.SetEx(ctx, linkKey(linkID)+negCacheKeySuffix, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
