package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/linkpeek/linkpeek/internal/metrics"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/repository"
	"github.com/linkpeek/linkpeek/internal/urlcheck"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeLinks struct {
	mu        sync.Mutex
	links     []*model.Link
	health    map[string]model.LinkHealth
	sanitized map[string]string
	failFor   map[string]bool
	listErr   error
}

func newFakeLinks(links ...*model.Link) *fakeLinks {
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	return &fakeLinks{
		links:     links,
		health:    make(map[string]model.LinkHealth),
		sanitized: make(map[string]string),
		failFor:   make(map[string]bool),
	}
}

func (f *fakeLinks) ListActiveLinks(_ context.Context, afterID string, limit int) ([]*model.Link, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*model.Link
	for _, l := range f.links {
		if l.ID > afterID && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinks) UpdateLinkHealth(_ context.Context, id string, h model.LinkHealth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[id] {
		return errors.New("write failed")
	}
	f.health[id] = h
	return nil
}

func (f *fakeLinks) UpdateSanitizedURL(_ context.Context, id, s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sanitized[id] = s
	return nil
}

type fakeOutcomes map[string]repository.LinkOutcomes

func (f fakeOutcomes) LinkOutcomesSince(_ context.Context, id string, _ time.Time) (repository.LinkOutcomes, error) {
	return f[id], nil
}

type fakeInspector struct {
	chain Chain
}

func (f fakeInspector) Inspect(_ context.Context, target string) Chain {
	if len(f.chain.Hops) == 0 {
		return Chain{Hops: []Hop{{URL: target, Status: 200, Duration: 120 * time.Millisecond}}}
	}
	return f.chain
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func link(id, owner, dest string) *model.Link {
	return &model.Link{ID: id, OwnerID: owner, DestURL: dest, IsActive: true}
}

func ptr(f float64) *float64 { return &f }

func TestClassify(t *testing.T) {
	t.Parallel()

	valid := urlcheck.Report{IsValid: true}
	safe := urlcheck.Safety{Safe: true}
	ok := Chain{Hops: []Hop{{Status: 200}}}

	tests := []struct {
		name      string
		report    urlcheck.Report
		safety    urlcheck.Safety
		chain     Chain
		integrity *float64
		want      model.HealthStatus
	}{
		{"healthy", valid, safe, ok, ptr(99), model.HealthHealthy},
		{"no records", valid, safe, ok, nil, model.HealthHealthy},
		{"invalid url", urlcheck.Report{}, safe, ok, nil, model.HealthError},
		{"final 404", valid, safe, Chain{Hops: []Hop{{Status: 301}, {Status: 404}}}, nil, model.HealthError},
		{"integrity below 70", valid, safe, ok, ptr(69.9), model.HealthError},
		{"integrity below 90", valid, safe, ok, ptr(85), model.HealthWarning},
		{"long chain", valid, safe, Chain{Hops: []Hop{{Status: 301}, {Status: 302}, {Status: 200}}}, nil, model.HealthWarning},
		{"soft failed", valid, safe, Chain{Hops: []Hop{{}}, Err: errors.New("timeout")}, nil, model.HealthWarning},
		{"unsafe", valid, urlcheck.Safety{Reason: "suspicious TLD"}, ok, nil, model.HealthWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.report, tt.safety, tt.chain, tt.integrity); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckLink_WritesHealth(t *testing.T) {
	t.Parallel()

	links := newFakeLinks()
	outcomes := fakeOutcomes{"l1": {Total: 100, Successes: 95, AvgLoadTimeMs: 340}}
	inv := &fakeInvalidator{}
	c := NewChecker(links, outcomes, fakeInspector{}, inv, nil, nil, Config{})

	res, err := c.CheckLink(context.Background(), link("l1", "o1", "  shop.example/sale?utm_source=&a=1"), now)
	if err != nil {
		t.Fatalf("CheckLink() err = %v", err)
	}

	if got := links.sanitized["l1"]; got != "https://shop.example/sale?a=1" {
		t.Errorf("sanitized = %q", got)
	}
	h := links.health["l1"]
	if h.Status != model.HealthHealthy || h.ChainLength != 1 || h.AvgRedirectMs != 340 || !h.CheckedAt.Equal(now) {
		t.Errorf("health = %+v", h)
	}
	if h.IntegrityScore == nil || *h.IntegrityScore != 95 {
		t.Errorf("integrity = %v, want 95", h.IntegrityScore)
	}
	if res.Health.Status != h.Status {
		t.Errorf("result status %s differs from stored %s", res.Health.Status, h.Status)
	}
	if len(inv.ids) != 1 || inv.ids[0] != "l1" {
		t.Errorf("invalidated = %v", inv.ids)
	}
}

func TestCheckLink_NoOutcomesUsesChainTime(t *testing.T) {
	t.Parallel()

	links := newFakeLinks()
	sanitized := "https://shop.example/"
	l := link("l1", "o1", sanitized)
	l.SanitizedDestURL = &sanitized
	inv := &fakeInvalidator{}
	c := NewChecker(links, fakeOutcomes{}, fakeInspector{}, inv, nil, nil, Config{})

	if _, err := c.CheckLink(context.Background(), l, now); err != nil {
		t.Fatalf("CheckLink() err = %v", err)
	}
	h := links.health["l1"]
	if h.AvgRedirectMs != 120 || h.IntegrityScore != nil {
		t.Errorf("health = %+v", h)
	}
	if _, ok := links.sanitized["l1"]; ok {
		t.Error("unchanged sanitized url should not be rewritten")
	}
	if len(inv.ids) != 0 {
		t.Errorf("unchanged link invalidated: %v", inv.ids)
	}
}

func TestCheckLink_InvalidSkipsInspection(t *testing.T) {
	t.Parallel()

	links := newFakeLinks()
	c := NewChecker(links, fakeOutcomes{}, fakeInspector{chain: Chain{Hops: []Hop{{}, {}, {}, {}}}}, nil, nil, nil, Config{})

	res, err := c.CheckLink(context.Background(), link("l1", "o1", "ftp://x"), now)
	if err != nil {
		t.Fatalf("CheckLink() err = %v", err)
	}
	if res.Health.Status != model.HealthError || res.Health.ChainLength != 1 {
		t.Errorf("health = %+v", res.Health)
	}
}

func TestCheckLink_RefusedDestinationNotCached(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		dest  string
		stale bool
	}{
		{"javascript", "javascript://example.com/%0aalert(1)", false},
		{"file", "file:///etc/passwd", false},
		{"vbscript with stale cache", "vbscript:msgbox(1)", true},
		{"ftp with stale cache", "ftp://files.example.com/a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			links := newFakeLinks()
			inv := &fakeInvalidator{}
			l := link("l1", "o1", tt.dest)
			if tt.stale {
				stale := "https://files.example.com/a"
				l.SanitizedDestURL = &stale
			}
			c := NewChecker(links, fakeOutcomes{}, fakeInspector{}, inv, nil, nil, Config{})

			res, err := c.CheckLink(context.Background(), l, now)
			if err != nil {
				t.Fatalf("CheckLink() err = %v", err)
			}
			if res.Health.Status != model.HealthError {
				t.Errorf("status = %s, want error", res.Health.Status)
			}

			got, written := links.sanitized["l1"]
			switch {
			case tt.stale && (!written || got != ""):
				t.Errorf("stale sanitized url not cleared: written=%v value=%q", written, got)
			case !tt.stale && written:
				t.Errorf("refused destination cached as %q", got)
			}
			if tt.stale && len(inv.ids) != 1 {
				t.Errorf("cleared link not invalidated: %v", inv.ids)
			}
		})
	}
}

func TestRun_PaginatesAndCounts(t *testing.T) {
	t.Parallel()

	links := newFakeLinks(
		link("a", "o1", "https://one.example/"),
		link("b", "o1", "https://two.example/"),
		link("c", "o2", "https://three.example/"),
	)
	outcomes := fakeOutcomes{"c": {Total: 10, Successes: 5}}
	rec := metrics.NewInMemory()
	c := NewChecker(links, outcomes, fakeInspector{}, nil, rec, nil, Config{PageSize: 2, Concurrency: 2})

	sum, err := c.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if sum.Checked != 3 || sum.Healthy != 2 || sum.Error != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(links.health) != 3 {
		t.Errorf("stored %d health rows, want 3", len(links.health))
	}
	if got := rec.Snapshot().HealthChecks["healthy"]; got != 2 {
		t.Errorf("healthy metric = %d, want 2", got)
	}
}

func TestRun_SkipsOwnerAfterErrors(t *testing.T) {
	t.Parallel()

	var all []*model.Link
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		all = append(all, link(id, "bad", "https://bad.example/"))
	}
	all = append(all, link("z1", "good", "https://good.example/"))
	links := newFakeLinks(all...)
	for _, l := range all[:4] {
		links.failFor[l.ID] = true
	}

	// One worker and one link per page keep the order deterministic.
	c := NewChecker(links, fakeOutcomes{}, fakeInspector{}, nil, nil, nil, Config{PageSize: 1, Concurrency: 1, MaxOwnerErrors: 2})

	sum, err := c.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if sum.Failed != 2 || sum.Skipped != 2 || sum.Checked != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if _, ok := links.health["z1"]; !ok {
		t.Error("other owner should still be checked")
	}
}

func TestRun_ListError(t *testing.T) {
	t.Parallel()

	links := newFakeLinks()
	links.listErr = errors.New("db down")
	c := NewChecker(links, fakeOutcomes{}, fakeInspector{}, nil, nil, nil, Config{})

	if _, err := c.Run(context.Background(), now); err == nil {
		t.Fatal("expected error")
	}
}
