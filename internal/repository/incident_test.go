package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/testutil"
)

func newTestIncident(key model.GroupKey, detectedAt time.Time) *model.Incident {
	return &model.Incident{
		ID:         testutil.UniqueID("inc"),
		Platform:   key.Platform,
		Country:    key.Country,
		Device:     key.Device,
		ErrorRate:  25,
		Severity:   model.SeverityHigh,
		SampleSize: 80,
		DetectedAt: detectedAt,
		Metadata: model.IncidentMetadata{
			Failures:        20,
			DetectionWindow: "5m",
			Thresholds:      map[model.Severity]float64{model.SeverityHigh: 20},
		},
	}
}

func TestRepository_IncidentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	key := model.GroupKey{Platform: "ios", Country: "US", Device: "mobile"}
	detected := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Millisecond)
	inc := newTestIncident(key, detected)

	if err := repo.CreateIncident(ctx, inc); err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if err := repo.CreateIncident(ctx, newTestIncident(key, detected)); !errors.Is(err, ErrIncidentOpen) {
		t.Fatalf("expected ErrIncidentOpen, got %v", err)
	}

	open, err := repo.GetOpenIncident(ctx, key)
	if err != nil {
		t.Fatalf("get open: %v", err)
	}
	if open.ID != inc.ID || open.Metadata.Failures != 20 || open.Metadata.DetectionWindow != "5m" {
		t.Fatalf("open incident = %+v", open)
	}

	stale, err := repo.ListOpenIncidents(ctx, time.Now().Add(-time.Hour))
	if err != nil || len(stale) != 1 {
		t.Fatalf("ListOpenIncidents = %d, %v", len(stale), err)
	}

	n, err := repo.ResolveIncidents(ctx, []string{inc.ID, "missing"}, time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("ResolveIncidents = %d, %v", n, err)
	}
	if _, err := repo.GetOpenIncident(ctx, key); !errors.Is(err, ErrIncidentNotFound) {
		t.Fatalf("expected ErrIncidentNotFound, got %v", err)
	}
}

func TestRepository_SupersedeIncident(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	key := model.GroupKey{Platform: "android", Country: "unknown", Device: "mobile"}
	old := newTestIncident(key, time.Now().UTC().Add(-45*time.Minute))
	if err := repo.CreateIncident(ctx, old); err != nil {
		t.Fatalf("create incident: %v", err)
	}

	fresh := newTestIncident(key, time.Now().UTC())
	fresh.Severity = model.SeverityCritical
	if err := repo.SupersedeIncident(ctx, old.ID, fresh); err != nil {
		t.Fatalf("supersede: %v", err)
	}

	open, err := repo.GetOpenIncident(ctx, key)
	if err != nil {
		t.Fatalf("get open: %v", err)
	}
	if open.ID != fresh.ID || open.Severity != model.SeverityCritical {
		t.Errorf("open incident = %+v", open)
	}

	all, err := repo.ListIncidents(ctx, IncidentFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("ListIncidents = %d, %v", len(all), err)
	}
	for _, inc := range all {
		if inc.ID == old.ID && (inc.SupersededBy == nil || *inc.SupersededBy != fresh.ID || inc.IsOpen()) {
			t.Errorf("stale incident not superseded: %+v", inc)
		}
		if inc.ID == old.ID && inc.ResolvedAt != nil {
			t.Errorf("superseded incident should stay unresolved: %+v", inc)
		}
	}

	critical, err := repo.ListIncidents(ctx, IncidentFilter{OpenOnly: true, Severities: []model.Severity{model.SeverityCritical}})
	if err != nil || len(critical) != 1 {
		t.Fatalf("filtered ListIncidents = %d, %v", len(critical), err)
	}
}

func TestRepository_WindowStats(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)
	records := NewRedirectRecordRepository(repo)

	link := testutil.NewTestLink(t, "https://example.com")
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	now := time.Now().UTC()
	batch := []*model.RedirectRecord{
		{ID: "r1", EventID: "e1", LinkID: link.ID, TS: now.Add(-time.Minute), Success: false, Platform: "ios", Device: "mobile", Country: "US", VisitorHash: "v1"},
		{ID: "r2", EventID: "e2", LinkID: link.ID, TS: now.Add(-time.Minute), Success: false, Platform: "ios", Device: "mobile", Country: "US", VisitorHash: "v1"},
		{ID: "r3", EventID: "e3", LinkID: link.ID, TS: now.Add(-time.Minute), Success: true, Platform: "ios", Device: "mobile", Country: "US", VisitorHash: "v2"},
		{ID: "r4", EventID: "e4", LinkID: link.ID, TS: now.Add(-time.Minute), Success: true, Platform: "android"},
		{ID: "r5", EventID: "e5", LinkID: link.ID, TS: now.Add(-time.Hour), Success: false, Platform: "ios", Device: "mobile", Country: "US"},
	}
	if rejected, err := records.BulkInsert(ctx, batch); err != nil || len(rejected) != 0 {
		t.Fatalf("bulk insert: rejected=%d err=%v", len(rejected), err)
	}
	// Redelivery is a no-op.
	if rejected, err := records.BulkInsert(ctx, batch[:1]); err != nil || len(rejected) != 0 {
		t.Fatalf("bulk insert duplicate: rejected=%d err=%v", len(rejected), err)
	}

	stats, err := records.WindowStats(ctx, now.Add(-5*time.Minute), now)
	if err != nil {
		t.Fatalf("window stats: %v", err)
	}

	byKey := make(map[model.GroupKey]model.GroupStats)
	for _, s := range stats {
		byKey[s.Key] = s
	}
	ios := byKey[model.GroupKey{Platform: "ios", Country: "US", Device: "mobile"}]
	if ios.Total != 3 || ios.Failures != 2 || ios.AffectedUsers != 1 {
		t.Errorf("ios stats = %+v", ios)
	}
	android := byKey[model.GroupKey{Platform: "android", Country: "unknown", Device: "unknown"}]
	if android.Total != 1 {
		t.Errorf("android stats = %+v", android)
	}

	outcomes, err := records.LinkOutcomesSince(ctx, link.ID, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("link outcomes: %v", err)
	}
	if outcomes.Total != 5 || outcomes.Successes != 2 {
		t.Errorf("outcomes = %+v", outcomes)
	}
}
