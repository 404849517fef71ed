// Package main runs the background jobs: the incident detector and the
// link health checker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/linkpeek/linkpeek/internal/alert"
	"github.com/linkpeek/linkpeek/internal/cache"
	"github.com/linkpeek/linkpeek/internal/config"
	"github.com/linkpeek/linkpeek/internal/health"
	"github.com/linkpeek/linkpeek/internal/incident"
	"github.com/linkpeek/linkpeek/internal/logging"
	"github.com/linkpeek/linkpeek/internal/metrics"
	"github.com/linkpeek/linkpeek/internal/repository"
	"github.com/linkpeek/linkpeek/internal/service"
)

// options are the command-line overrides applied on top of the env config.
type options struct {
	Once           bool
	SkipIncidents  bool
	SkipHealth     bool
	Interval       time.Duration
	Window         time.Duration
	MinSample      int
	HealthInterval time.Duration
	Concurrency    int
	RPS            float64
	MetricsAddr    string
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	opts := options{
		Interval:       cfg.DetectorInterval,
		Window:         cfg.DetectorWindow,
		MinSample:      cfg.DetectorMinSample,
		HealthInterval: cfg.HealthCheckInterval,
		Concurrency:    cfg.HealthCheckConcurrency,
		RPS:            cfg.HealthCheckRPS,
	}

	fs := pflag.NewFlagSet("detector", pflag.ContinueOnError)
	fs.BoolVar(&opts.Once, "once", false, "Run each job once and exit")
	fs.BoolVar(&opts.SkipIncidents, "skip-incidents", false, "Do not run the incident detector")
	fs.BoolVar(&opts.SkipHealth, "skip-health", false, "Do not run the link health checker")
	fs.DurationVarP(&opts.Interval, "interval", "i", opts.Interval, "Incident detector interval")
	fs.DurationVar(&opts.Window, "window", opts.Window, "Incident detection window")
	fs.IntVar(&opts.MinSample, "min-sample", opts.MinSample, "Minimum records per group")
	fs.DurationVar(&opts.HealthInterval, "health-interval", opts.HealthInterval, "Link health check interval")
	fs.IntVar(&opts.Concurrency, "health-concurrency", opts.Concurrency, "Concurrent link health checks")
	fs.Float64Var(&opts.RPS, "health-rps", opts.RPS, "Outbound health check requests per second (0 = unlimited)")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.SkipIncidents && opts.SkipHealth {
		return options{}, errors.New("--skip-incidents and --skip-health leave nothing to run")
	}
	if !opts.Once && (opts.Interval <= 0 || opts.HealthInterval <= 0) {
		return options{}, errors.New("intervals must be positive")
	}
	return opts, nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("detector failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database %s: %s", logging.RedactURL(cfg.DatabaseURL), logging.SanitizeError(err, cfg.DatabaseURL))
	}
	defer repo.Close()

	var recorder metrics.Recorder = metrics.NewNoop()
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder = prom
		if opts.MetricsAddr != "" {
			srv := &http.Server{Addr: opts.MetricsAddr, Handler: prom.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server stopped", "error", err)
				}
			}()
			defer srv.Close()
		}
	}

	// Incident alerts
	var notifier incident.Notifier
	if cfg.AlertsEnabled() {
		n := alert.NewNotifier(cfg.AlertWebhookURL, cfg.AlertWebhookSecret, nil, logger, recorder)
		notifier = n
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := n.Close(closeCtx); err != nil {
				logger.Warn("alert notifier did not drain", "error", err)
			}
		}()
	}

	// The health checker drops cached links whose destination changed.
	var invalidator health.Invalidator
	if cfg.LinkCacheEnabled {
		cacheClient, err := cache.New(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to Redis %s: %s", logging.RedactURL(cfg.RedisURL), logging.SanitizeError(err, cfg.RedisURL))
		}
		defer cacheClient.Close()
		invalidator = service.NewLinkService(repo, cacheClient, logger.With("component", "service.link"))
	}

	records := repository.NewRedirectRecordRepository(repo)
	detector := incident.NewDetector(records, repo, notifier, recorder, logger, incident.Config{
		Window:    opts.Window,
		MinSample: opts.MinSample,
	})
	checker := health.NewChecker(repo, records, health.NewInspector(opts.RPS, opts.Concurrency), invalidator, recorder, logger, health.Config{
		Concurrency: opts.Concurrency,
	})

	logger.Info("detector starting",
		"once", opts.Once,
		"incidents", !opts.SkipIncidents,
		"health", !opts.SkipHealth,
		"interval", opts.Interval,
		"health_interval", opts.HealthInterval,
		"alerts", cfg.AlertsEnabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	if !opts.SkipIncidents {
		g.Go(func() error {
			if opts.Once {
				_, err := detector.Run(gctx, time.Now().UTC())
				return err
			}
			return detector.Loop(gctx, opts.Interval)
		})
	}
	if !opts.SkipHealth {
		g.Go(func() error {
			if opts.Once {
				_, err := checker.Run(gctx, time.Now().UTC())
				return err
			}
			return checker.Loop(gctx, opts.HealthInterval)
		})
	}

	err = g.Wait()
	logger.Info("detector stopped")
	return err
}
