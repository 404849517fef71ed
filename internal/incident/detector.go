// Package incident detects reliability incidents from recent redirect
// outcomes, grouped by (platform, country, device).
//
// Runs must not overlap: two concurrent runs can both observe "no open
// incident" for a tuple. Loop runs sequentially; external schedulers must
// provide the same guarantee.
package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linkpeek/linkpeek/internal/metrics"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/repository"
)

// Defaults.
const (
	DefaultWindow       = 5 * time.Minute
	DefaultMinSample    = 50
	DefaultDedupeWindow = 30 * time.Minute
	DefaultResolveAge   = time.Hour
)

// Thresholds map severities to the minimum error rate (percent) that
// triggers them.
var Thresholds = map[model.Severity]float64{
	model.SeverityCritical: 40,
	model.SeverityHigh:     20,
	model.SeverityMedium:   10,
	model.SeverityLow:      5,
}

// severityOrder is highest first; the first matching threshold wins.
var severityOrder = []model.Severity{
	model.SeverityCritical,
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityLow,
}

// ClassifySeverity returns the severity for an error rate, or false when
// the rate is below every threshold.
func ClassifySeverity(errorRate float64) (model.Severity, bool) {
	for _, s := range severityOrder {
		if errorRate >= Thresholds[s] {
			return s, true
		}
	}
	return "", false
}

// resolveBelow is the error rate under which an incident may resolve.
func resolveBelow() float64 {
	return Thresholds[model.SeverityLow]
}

// StatsSource aggregates redirect records.
type StatsSource interface {
	WindowStats(ctx context.Context, from, to time.Time) ([]model.GroupStats, error)
}

// Store persists incidents.
type Store interface {
	GetOpenIncident(ctx context.Context, key model.GroupKey) (*model.Incident, error)
	CreateIncident(ctx context.Context, inc *model.Incident) error
	SupersedeIncident(ctx context.Context, staleID string, inc *model.Incident) error
	ListOpenIncidents(ctx context.Context, detectedBefore time.Time) ([]*model.Incident, error)
	ResolveIncidents(ctx context.Context, ids []string, at time.Time) (int64, error)
}

// Notifier is told about incident transitions. Implementations must not
// block for long; errors are theirs to handle.
type Notifier interface {
	IncidentOpened(ctx context.Context, inc *model.Incident)
	IncidentResolved(ctx context.Context, inc *model.Incident)
}

// Config tunes the detector.
type Config struct {
	Window       time.Duration
	MinSample    int
	DedupeWindow time.Duration
	ResolveAge   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinSample <= 0 {
		c.MinSample = DefaultMinSample
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = DefaultDedupeWindow
	}
	if c.ResolveAge <= 0 {
		c.ResolveAge = DefaultResolveAge
	}
	return c
}

// Detector opens and resolves incidents.
type Detector struct {
	stats    StatsSource
	store    Store
	notifier Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	cfg      Config
	newID    func() string
}

// NewDetector creates a detector. notifier and recorder may be nil.
func NewDetector(stats StatsSource, store Store, notifier Notifier, recorder metrics.Recorder, logger *slog.Logger, cfg Config) *Detector {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		stats:    stats,
		store:    store,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger.With("component", "incident.detector"),
		cfg:      cfg.withDefaults(),
		newID:    func() string { return ulid.Make().String() },
	}
}

// Summary describes one detector run.
type Summary struct {
	Groups     int
	Evaluated  int
	Opened     int
	Escalated  int
	Suppressed int
	Resolved   int
	Errors     int
	Duration   time.Duration
}

// LogValue renders the summary as a slog group.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("groups", s.Groups),
		slog.Int("evaluated", s.Evaluated),
		slog.Int("opened", s.Opened),
		slog.Int("escalated", s.Escalated),
		slog.Int("suppressed", s.Suppressed),
		slog.Int("resolved", s.Resolved),
		slog.Int("errors", s.Errors),
		slog.Int64("duration_ms", s.Duration.Milliseconds()),
	)
}

// Run performs one detection pass at now. Both the open and the resolve
// pass read the same window snapshot. Only a failure to read the window is
// returned; per-tuple failures are counted and logged.
func (d *Detector) Run(ctx context.Context, now time.Time) (Summary, error) {
	start := time.Now()
	var sum Summary

	stats, err := d.stats.WindowStats(ctx, now.Add(-d.cfg.Window), now)
	if err != nil {
		return sum, fmt.Errorf("load window stats: %w", err)
	}
	sum.Groups = len(stats)

	snapshot := make(map[model.GroupKey]model.GroupStats, len(stats))
	for _, g := range stats {
		if g.Total < d.cfg.MinSample {
			continue
		}
		snapshot[g.Key] = g
	}
	sum.Evaluated = len(snapshot)

	for _, g := range stats {
		if _, ok := snapshot[g.Key]; !ok {
			continue
		}
		if err := d.evaluate(ctx, now, g, &sum); err != nil {
			sum.Errors++
			d.logger.Error("incident evaluation failed", "group", g.Key.String(), "error", err)
		}
	}

	d.resolve(ctx, now, snapshot, &sum)

	sum.Duration = time.Since(start)
	d.metrics.ObserveDetectorRun(sum.Duration, sum.Errors)
	d.logger.Info("detector run complete", "summary", sum)
	return sum, nil
}

func (d *Detector) evaluate(ctx context.Context, now time.Time, g model.GroupStats, sum *Summary) error {
	rate := g.ErrorRate()
	severity, ok := ClassifySeverity(rate)
	if !ok {
		return nil
	}

	existing, err := d.store.GetOpenIncident(ctx, g.Key)
	if err != nil && !errors.Is(err, repository.ErrIncidentNotFound) {
		return fmt.Errorf("get open incident: %w", err)
	}
	if existing != nil && now.Sub(existing.DetectedAt) <= d.cfg.DedupeWindow {
		sum.Suppressed++
		return nil
	}

	inc := d.newIncident(now, g, rate, severity)

	if existing == nil {
		if err := d.store.CreateIncident(ctx, inc); err != nil {
			if errors.Is(err, repository.ErrIncidentOpen) {
				sum.Suppressed++
				return nil
			}
			return fmt.Errorf("create incident: %w", err)
		}
		sum.Opened++
	} else {
		if err := d.store.SupersedeIncident(ctx, existing.ID, inc); err != nil {
			return fmt.Errorf("supersede incident %s: %w", existing.ID, err)
		}
		sum.Escalated++
	}

	d.metrics.IncIncidentOpened(string(severity))
	d.logger.Warn("incident opened",
		"incident_id", inc.ID,
		"group", g.Key.String(),
		"severity", severity,
		"error_rate", rate,
		"sample_size", g.Total,
	)
	if d.notifier != nil {
		d.notifier.IncidentOpened(ctx, inc)
	}
	return nil
}

func (d *Detector) newIncident(now time.Time, g model.GroupStats, rate float64, severity model.Severity) *model.Incident {
	thresholds := make(map[model.Severity]float64, len(Thresholds))
	for k, v := range Thresholds {
		thresholds[k] = v
	}
	return &model.Incident{
		ID:            d.newID(),
		Platform:      g.Key.Platform,
		Country:       g.Key.Country,
		Device:        g.Key.Device,
		ErrorRate:     rate,
		Severity:      severity,
		SampleSize:    g.Total,
		AffectedUsers: g.AffectedUsers,
		DetectedAt:    now,
		Metadata: model.IncidentMetadata{
			Failures:        g.Failures,
			DetectionWindow: d.cfg.Window.String(),
			Thresholds:      thresholds,
		},
	}
}

// resolve closes incidents older than ResolveAge whose tuple is absent from
// the snapshot or below the lowest threshold.
func (d *Detector) resolve(ctx context.Context, now time.Time, snapshot map[model.GroupKey]model.GroupStats, sum *Summary) {
	open, err := d.store.ListOpenIncidents(ctx, now.Add(-d.cfg.ResolveAge))
	if err != nil {
		sum.Errors++
		d.logger.Error("list open incidents failed", "error", err)
		return
	}

	var candidates []*model.Incident
	for _, inc := range open {
		if g, ok := snapshot[inc.Key()]; ok && g.ErrorRate() >= resolveBelow() {
			continue
		}
		candidates = append(candidates, inc)
	}
	if len(candidates) == 0 {
		return
	}

	ids := make([]string, len(candidates))
	for i, inc := range candidates {
		ids[i] = inc.ID
	}

	resolved := candidates
	if _, err := d.store.ResolveIncidents(ctx, ids, now); err != nil {
		d.logger.Warn("bulk resolve failed, resolving individually", "count", len(ids), "error", err)
		resolved = resolved[:0:0]
		for _, inc := range candidates {
			if _, err := d.store.ResolveIncidents(ctx, []string{inc.ID}, now); err != nil {
				sum.Errors++
				d.logger.Error("resolve incident failed", "incident_id", inc.ID, "error", err)
				continue
			}
			resolved = append(resolved, inc)
		}
	}

	sum.Resolved += len(resolved)
	d.metrics.IncIncidentResolved(len(resolved))
	for _, inc := range resolved {
		at := now
		inc.ResolvedAt = &at
		d.logger.Info("incident resolved", "incident_id", inc.ID, "group", inc.Key().String())
		if d.notifier != nil {
			d.notifier.IncidentResolved(ctx, inc)
		}
	}
}

// Loop runs the detector immediately and then every interval until ctx is
// cancelled. Runs are sequential, so they never overlap.
func (d *Detector) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.Run(ctx, time.Now().UTC()); err != nil {
			d.logger.Error("detector run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
