// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/linkpeek/linkpeek/internal/cache"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/repository"
)

// Service errors.
var (
	ErrLinkNotFound = errors.New("link not found")
	ErrLinkInactive = errors.New("link is inactive")
)

// LinkStore is the persistent source of links.
type LinkStore interface {
	GetLinkByID(ctx context.Context, id string) (*model.Link, error)
}

// LinkCache is the read-through cache in front of LinkStore.
type LinkCache interface {
	GetLink(ctx context.Context, id string) (*model.Link, error)
	SetLink(ctx context.Context, link *model.Link) error
	DeleteLink(ctx context.Context, id string) error
	IsNegativelyCached(ctx context.Context, id string) (bool, error)
	SetNegativeCache(ctx context.Context, id string) error
}

// LinkService resolves links for the redirect path.
type LinkService struct {
	store  LinkStore
	cache  LinkCache
	logger *slog.Logger
}

// NewLinkService creates a new LinkService. A nil cache disables caching.
func NewLinkService(store LinkStore, linkCache LinkCache, logger *slog.Logger) *LinkService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkService{
		store:  store,
		cache:  linkCache,
		logger: logger,
	}
}

// ResolveLink loads an active link by ID.
// This is the hot path: cache first, then the database, then backfill.
// Cache failures never fail the lookup.
func (s *LinkService) ResolveLink(ctx context.Context, id string) (*model.Link, bool, error) {
	if s.cache == nil {
		link, err := s.lookup(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return checkActive(link, false)
	}

	// Step 1: Try cache
	cached, err := s.cache.GetLink(ctx, id)
	if err == nil {
		return checkActive(cached, true)
	}

	// Step 2: Check negative cache
	if errors.Is(err, cache.ErrCacheMiss) {
		negative, negErr := s.cache.IsNegativelyCached(ctx, id)
		if negErr == nil && negative {
			return nil, false, ErrLinkNotFound
		}
	} else {
		s.logger.Warn("link cache read failed", "link_id", id, "error", err)
	}

	// Step 3: DB lookup
	link, err := s.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			_ = s.cache.SetNegativeCache(ctx, id)
		}
		return nil, false, err
	}

	// Step 4: Backfill cache
	if err := s.cache.SetLink(ctx, link); err != nil {
		s.logger.Warn("link cache backfill failed", "link_id", id, "error", err)
	}

	return checkActive(link, false)
}

// Invalidate drops a cached link so the next lookup reads the database.
func (s *LinkService) Invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteLink(ctx, id); err != nil {
		s.logger.Warn("link cache invalidation failed", "link_id", id, "error", err)
	}
}

func (s *LinkService) lookup(ctx context.Context, id string) (*model.Link, error) {
	link, err := s.store.GetLinkByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return link, nil
}

func checkActive(link *model.Link, cacheHit bool) (*model.Link, bool, error) {
	if !link.IsActive {
		return nil, cacheHit, ErrLinkInactive
	}
	return link, cacheHit, nil
}
