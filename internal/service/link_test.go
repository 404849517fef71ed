package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linkpeek/linkpeek/internal/cache"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/repository"
)

type fakeStore struct {
	mu    sync.Mutex
	links map[string]*model.Link
	err   error
	calls int
}

func (f *fakeStore) GetLinkByID(_ context.Context, id string) (*model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	link, ok := f.links[id]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

type fakeCache struct {
	mu       sync.Mutex
	links    map[string]*model.Link
	negative map[string]bool
	readErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{links: map[string]*model.Link{}, negative: map[string]bool{}}
}

func (f *fakeCache) GetLink(_ context.Context, id string) (*model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	link, ok := f.links[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return link, nil
}

func (f *fakeCache) SetLink(_ context.Context, link *model.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[link.ID] = link
	delete(f.negative, link.ID)
	return nil
}

func (f *fakeCache) DeleteLink(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, id)
	delete(f.negative, id)
	return nil
}

func (f *fakeCache) IsNegativelyCached(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.negative[id], nil
}

func (f *fakeCache) SetNegativeCache(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.negative[id] = true
	return nil
}

func activeLink(id string) *model.Link {
	return &model.Link{ID: id, DestURL: "https://example.com/" + id, IsActive: true}
}

func TestResolveLink_ReadThrough(t *testing.T) {
	t.Parallel()

	store := &fakeStore{links: map[string]*model.Link{"l1": activeLink("l1")}}
	c := newFakeCache()
	svc := NewLinkService(store, c, nil)
	ctx := context.Background()

	link, hit, err := svc.ResolveLink(ctx, "l1")
	if err != nil || hit || link.ID != "l1" {
		t.Fatalf("first lookup = %v, %v, %v", link, hit, err)
	}
	if _, ok := c.links["l1"]; !ok {
		t.Fatal("cache was not backfilled")
	}

	_, hit, err = svc.ResolveLink(ctx, "l1")
	if err != nil || !hit {
		t.Fatalf("second lookup hit=%v err=%v", hit, err)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestResolveLink_NegativeCache(t *testing.T) {
	t.Parallel()

	store := &fakeStore{links: map[string]*model.Link{}}
	c := newFakeCache()
	svc := NewLinkService(store, c, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.ResolveLink(ctx, "missing"); !errors.Is(err, ErrLinkNotFound) {
			t.Fatalf("lookup %d err = %v, want ErrLinkNotFound", i, err)
		}
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestResolveLink_Inactive(t *testing.T) {
	t.Parallel()

	link := activeLink("off")
	link.IsActive = false
	store := &fakeStore{links: map[string]*model.Link{"off": link}}
	svc := NewLinkService(store, newFakeCache(), nil)

	if _, _, err := svc.ResolveLink(context.Background(), "off"); !errors.Is(err, ErrLinkInactive) {
		t.Fatalf("err = %v, want ErrLinkInactive", err)
	}
}

func TestResolveLink_CacheErrorFallsThrough(t *testing.T) {
	t.Parallel()

	store := &fakeStore{links: map[string]*model.Link{"l1": activeLink("l1")}}
	c := newFakeCache()
	c.readErr = errors.New("connection refused")
	svc := NewLinkService(store, c, nil)

	link, hit, err := svc.ResolveLink(context.Background(), "l1")
	if err != nil || hit || link == nil {
		t.Fatalf("lookup = %v, %v, %v", link, hit, err)
	}
}

func TestResolveLink_StoreError(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("db down")
	svc := NewLinkService(&fakeStore{err: storeErr}, nil, nil)

	_, _, err := svc.ResolveLink(context.Background(), "l1")
	if !errors.Is(err, storeErr) || errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("err = %v, want store error", err)
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	c := newFakeCache()
	c.links["l1"] = activeLink("l1")
	svc := NewLinkService(&fakeStore{}, c, nil)

	svc.Invalidate(context.Background(), "l1")
	if _, ok := c.links["l1"]; ok {
		t.Error("link still cached")
	}
	// nil cache is a no-op
	NewLinkService(&fakeStore{}, nil, nil).Invalidate(context.Background(), "l1")
}
