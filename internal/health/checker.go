package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linkpeek/linkpeek/internal/metrics"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/repository"
	"github.com/linkpeek/linkpeek/internal/urlcheck"
)

// Checker defaults.
const (
	DefaultOutcomeWindow  = 24 * time.Hour
	DefaultConcurrency    = 8
	DefaultPageSize       = 200
	DefaultMaxOwnerErrors = 5

	errorIntegrity   = 70.0
	warningIntegrity = 90.0
	maxHealthyChain  = 2
)

// LinkSource lists links and receives health results.
type LinkSource interface {
	ListActiveLinks(ctx context.Context, afterID string, limit int) ([]*model.Link, error)
	UpdateLinkHealth(ctx context.Context, id string, health model.LinkHealth) error
	UpdateSanitizedURL(ctx context.Context, id, sanitized string) error
}

// OutcomeSource aggregates a link's redirect records.
type OutcomeSource interface {
	LinkOutcomesSince(ctx context.Context, linkID string, since time.Time) (repository.LinkOutcomes, error)
}

// ChainInspector follows a destination's redirects.
type ChainInspector interface {
	Inspect(ctx context.Context, target string) Chain
}

// Invalidator drops cached copies of a link after its fields change.
type Invalidator interface {
	Invalidate(ctx context.Context, id string)
}

// Config tunes the checker.
type Config struct {
	OutcomeWindow  time.Duration
	Concurrency    int
	PageSize       int
	MaxOwnerErrors int
}

func (c Config) withDefaults() Config {
	if c.OutcomeWindow <= 0 {
		c.OutcomeWindow = DefaultOutcomeWindow
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxOwnerErrors <= 0 {
		c.MaxOwnerErrors = DefaultMaxOwnerErrors
	}
	return c
}

// Checker computes and stores link health.
type Checker struct {
	links       LinkSource
	outcomes    OutcomeSource
	inspector   ChainInspector
	invalidator Invalidator
	metrics     metrics.Recorder
	logger      *slog.Logger
	cfg         Config
}

// NewChecker creates a checker. invalidator and recorder may be nil.
func NewChecker(links LinkSource, outcomes OutcomeSource, inspector ChainInspector, invalidator Invalidator, recorder metrics.Recorder, logger *slog.Logger, cfg Config) *Checker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		links:       links,
		outcomes:    outcomes,
		inspector:   inspector,
		invalidator: invalidator,
		metrics:     recorder,
		logger:      logger.With("component", "health.checker"),
		cfg:         cfg.withDefaults(),
	}
}

// Result is the computed health of one link.
type Result struct {
	LinkID string
	Health model.LinkHealth
	Chain  Chain
}

// Summary describes one checker run.
type Summary struct {
	Checked  int
	Healthy  int
	Warning  int
	Error    int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// LogValue renders the summary as a slog group.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("checked", s.Checked),
		slog.Int("healthy", s.Healthy),
		slog.Int("warning", s.Warning),
		slog.Int("error", s.Error),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int64("duration_ms", s.Duration.Milliseconds()),
	)
}

// runState is shared by the workers of one run.
type runState struct {
	mu          sync.Mutex
	sum         Summary
	ownerErrors map[string]int
}

func (s *runState) skip(owner string, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerErrors[owner] >= limit {
		s.sum.Skipped++
		return true
	}
	return false
}

func (s *runState) record(owner string, status model.HealthStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.sum.Failed++
		s.ownerErrors[owner]++
		return
	}
	s.sum.Checked++
	switch status {
	case model.HealthHealthy:
		s.sum.Healthy++
	case model.HealthWarning:
		s.sum.Warning++
	case model.HealthError:
		s.sum.Error++
	}
}

// Run checks every active link once. A failed link never stops the run;
// after MaxOwnerErrors failures an owner's remaining links are skipped.
// Only a failure to list links is returned.
func (c *Checker) Run(ctx context.Context, now time.Time) (Summary, error) {
	start := time.Now()
	state := &runState{ownerErrors: make(map[string]int)}

	afterID := ""
	for {
		page, err := c.links.ListActiveLinks(ctx, afterID, c.cfg.PageSize)
		if err != nil {
			return state.sum, fmt.Errorf("list active links: %w", err)
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)
		for _, link := range page {
			if state.skip(link.OwnerID, c.cfg.MaxOwnerErrors) {
				continue
			}
			g.Go(func() error {
				res, err := c.CheckLink(gctx, link, now)
				if err != nil {
					c.metrics.IncHealthCheck("failed")
					c.logger.Warn("link health check failed", "link_id", link.ID, "owner_id", link.OwnerID, "error", err)
				} else {
					c.metrics.IncHealthCheck(string(res.Health.Status))
				}
				state.record(link.OwnerID, res.Health.Status, err)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return state.sum, err
		}
		afterID = page[len(page)-1].ID
		if len(page) < c.cfg.PageSize {
			break
		}
	}

	state.sum.Duration = time.Since(start)
	c.logger.Info("health check run complete", "summary", state.sum)
	return state.sum, nil
}

// CheckLink computes and stores the health of one link.
func (c *Checker) CheckLink(ctx context.Context, link *model.Link, now time.Time) (Result, error) {
	res := Result{LinkID: link.ID}

	// The written scheme is only visible on the raw destination.
	report := urlcheck.Validate(link.DestURL)
	sanitized := report.Sanitized

	// Only destinations the redirect path would serve are cached. A refused
	// destination clears any earlier cached form.
	cached := ""
	if report.IsValid && urlcheck.CheckRedirectTarget(link.DestURL, sanitized) == nil {
		cached = sanitized
	}
	previous := ""
	if link.SanitizedDestURL != nil {
		previous = *link.SanitizedDestURL
	}

	changed := false
	if cached != previous {
		if err := c.links.UpdateSanitizedURL(ctx, link.ID, cached); err != nil {
			return res, fmt.Errorf("update sanitized url: %w", err)
		}
		changed = true
	}

	safety := urlcheck.IsURLSafe(sanitized)

	chain := Chain{Hops: []Hop{{URL: sanitized}}}
	if report.IsValid {
		chain = c.inspector.Inspect(ctx, sanitized)
	}
	res.Chain = chain

	outcomes, err := c.outcomes.LinkOutcomesSince(ctx, link.ID, now.Add(-c.cfg.OutcomeWindow))
	if err != nil {
		return res, fmt.Errorf("load outcomes: %w", err)
	}
	integrity := outcomes.SuccessRate()

	avg := int(chain.Total().Milliseconds())
	if outcomes.Total > 0 {
		avg = outcomes.AvgLoadTimeMs
	}

	res.Health = model.LinkHealth{
		Status:         Classify(report, safety, chain, integrity),
		CheckedAt:      now,
		ChainLength:    chain.Length(),
		AvgRedirectMs:  avg,
		IntegrityScore: integrity,
	}
	if err := c.links.UpdateLinkHealth(ctx, link.ID, res.Health); err != nil {
		return res, fmt.Errorf("update link health: %w", err)
	}

	// Chain length and integrity are cached for the redirect path.
	if c.invalidator != nil && (changed || link.RedirectChainLength() != res.Health.ChainLength) {
		c.invalidator.Invalidate(ctx, link.ID)
	}
	return res, nil
}

// Classify derives a health status. integrity is nil when the link has no
// recent redirect records and then plays no part.
func Classify(report urlcheck.Report, safety urlcheck.Safety, chain Chain, integrity *float64) model.HealthStatus {
	switch {
	case !report.IsValid:
		return model.HealthError
	case chain.FinalStatus() >= 400:
		return model.HealthError
	case integrity != nil && *integrity < errorIntegrity:
		return model.HealthError
	case chain.Err != nil,
		chain.Length() > maxHealthyChain,
		integrity != nil && *integrity < warningIntegrity,
		!safety.Safe:
		return model.HealthWarning
	}
	return model.HealthHealthy
}

// Loop runs the checker immediately and then every interval until ctx is
// cancelled.
func (c *Checker) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Run(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
			c.logger.Error("health check run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
