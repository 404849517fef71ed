// Package main is the entrypoint for the LinkPeek API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/linkpeek/linkpeek/internal/cache"
	"github.com/linkpeek/linkpeek/internal/clicks"
	"github.com/linkpeek/linkpeek/internal/config"
	"github.com/linkpeek/linkpeek/internal/eventlog"
	"github.com/linkpeek/linkpeek/internal/handler"
	"github.com/linkpeek/linkpeek/internal/logging"
	"github.com/linkpeek/linkpeek/internal/metrics"
	"github.com/linkpeek/linkpeek/internal/middleware"
	"github.com/linkpeek/linkpeek/internal/ratelimit"
	"github.com/linkpeek/linkpeek/internal/repository"
	"github.com/linkpeek/linkpeek/internal/server"
	"github.com/linkpeek/linkpeek/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger. Logs go to stderr; stdout carries the redirect
	// event log.
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", logging.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", logging.RedactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Redis is optional; it backs the link cache, the shared rate limiter
	// and the click stream.
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", logging.SanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", logging.RedactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		defer cacheClient.Close()
		logger.Info("connected to Redis")
	}

	var (
		recorder metrics.Recorder = metrics.NewNoop()
		prom     *metrics.PrometheusRecorder
	)
	if cfg.MetricsEnabled {
		prom = metrics.NewPrometheus()
		recorder = prom
	}

	// Rate limiting
	var store ratelimit.Store
	if cfg.RateLimitStore == config.StoreRedis {
		store = ratelimit.NewRedis(cacheClient)
	} else {
		store = ratelimit.NewMemory(ratelimit.WithMaxEntries(cfg.RateLimitMaxEntries))
	}
	ipLimiter := ratelimit.NewLimiter(store, "ip", cfg.RateLimitIPMax, cfg.RateLimitWindow)
	linkLimiter := ratelimit.NewLimiter(store, "link", cfg.RateLimitLinkMax, cfg.RateLimitWindow)
	ingestLimiter := ratelimit.NewLimiter(store, "ingest", cfg.RateLimitIngestMax, cfg.RateLimitWindow)

	// Initialize services
	var linkCache service.LinkCache
	if cfg.LinkCacheEnabled {
		linkCache = cacheClient
	}
	linkService := service.NewLinkService(repo, linkCache, logger.With("component", "service.link"))

	// Initialize handlers
	healthDeps := map[string]handler.Pinger{"database": repo}
	if cacheClient != nil {
		healthDeps["redis"] = cacheClient
	}
	handlers := routeHandlers{
		health:    handler.NewHealthHandler(healthDeps),
		redirect:  handler.NewRedirectHandler(linkService, ipLimiter, linkLimiter, eventlog.New(os.Stdout), logger, cfg.LinkErrorPath),
		recovery:  handler.NewRecoveryHandler(repo, logger),
		incidents: handler.NewIncidentHandler(repo, logger),
	}
	if prom != nil {
		handlers.metrics = prom.Handler()
	}

	var worker *clicks.Worker
	if cacheClient != nil {
		publisher := clicks.NewPublisher(cacheClient.Client(), logger, recorder)
		handlers.clicks = handler.NewClickHandler(publisher, logger)

		if cfg.ClickWorkerEnabled {
			worker = clicks.NewWorker(cacheClient.Client(), repository.NewRedirectRecordRepository(repo), logger, clicks.NewConsumerID(), recorder)
			go func() {
				if err := worker.Run(ctx); err != nil {
					logger.Error("ingestion worker stopped", "error", err)
				}
			}()
		}
	}

	// Create server
	srv := server.New(
		setupRouter(handlers, ingestLimiter, cfg, logger),
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	if worker != nil {
		srv.OnShutdown("clicks.worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"rate_limit_store", cfg.RateLimitStore,
		"link_cache", cfg.LinkCacheEnabled,
		"click_worker", cfg.ClickWorkerEnabled,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

type routeHandlers struct {
	health    *handler.HealthHandler
	redirect  *handler.RedirectHandler
	clicks    *handler.ClickHandler // nil without Redis
	recovery  *handler.RecoveryHandler
	incidents *handler.IncidentHandler
	metrics   http.Handler // nil when metrics are disabled
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(h routeHandlers, ingestLimiter middleware.RateLimiter, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	// Global middleware
	r.Use(middleware.ProxyHeaders(cfg.TrustProxyHeaders))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger, "/healthz", "/readyz", "/metrics"))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// The redirect endpoint applies its own IP and link limits.
		r.Post("/redirect", h.redirect.Redirect)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(ingestLimiter, logger))
			if h.clicks != nil {
				r.Post("/clicks", h.clicks.Record)
			}
			r.Post("/recovery-attempts", h.recovery.LogAttempt)
		})

		r.Get("/recovery/instructions", h.recovery.Instructions)
		r.Get("/incidents", h.incidents.List)
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
