// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Rate limit store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache, shared rate limiter and click stream (Redis). Optional when
	// every Redis-backed feature is off.
	RedisURL string `env:"REDIS_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitIPMax      int           `env:"RATE_LIMIT_IP_MAX" envDefault:"100"`
	RateLimitLinkMax    int           `env:"RATE_LIMIT_LINK_MAX" envDefault:"50"`
	RateLimitIngestMax  int           `env:"RATE_LIMIT_INGEST_MAX" envDefault:"300"`
	RateLimitWindow     time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitStore      string        `env:"RATE_LIMIT_STORE" envDefault:"memory"`
	RateLimitMaxEntries int           `env:"RATE_LIMIT_MAX_ENTRIES" envDefault:"10000"`

	// Features
	LinkCacheEnabled   bool   `env:"LINK_CACHE_ENABLED" envDefault:"false"`
	ClickWorkerEnabled bool   `env:"CLICK_WORKER_ENABLED" envDefault:"false"`
	LinkErrorPath      string `env:"LINK_ERROR_PATH" envDefault:"/link-error.html"`

	// Incident detector
	DetectorWindow    time.Duration `env:"DETECTOR_WINDOW" envDefault:"5m"`
	DetectorMinSample int           `env:"DETECTOR_MIN_SAMPLE" envDefault:"50"`
	DetectorInterval  time.Duration `env:"DETECTOR_INTERVAL" envDefault:"5m"`

	// Link health checker
	HealthCheckInterval    time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"1h"`
	HealthCheckConcurrency int           `env:"HEALTH_CHECK_CONCURRENCY" envDefault:"8"`
	HealthCheckRPS         float64       `env:"HEALTH_CHECK_RPS" envDefault:"5"`

	// Incident alerts. Disabled when the URL is empty.
	AlertWebhookURL    string `env:"ALERT_WEBHOOK_URL"`
	AlertWebhookSecret string `env:"ALERT_WEBHOOK_SECRET"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,*.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Read client IPs from CF-Connecting-IP / X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites these headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// RedisRequired reports whether any enabled feature needs Redis.
func (c *Config) RedisRequired() bool {
	return c.RateLimitStore == StoreRedis || c.LinkCacheEnabled || c.ClickWorkerEnabled
}

// AlertsEnabled reports whether incident alerts are configured.
func (c *Config) AlertsEnabled() bool {
	return c.AlertWebhookURL != ""
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.RateLimitStore {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.RateLimitStore))
	}
	if c.RedisRequired() && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when the redis rate limit store, link cache or click worker is enabled"))
	}
	if c.RateLimitIPMax <= 0 || c.RateLimitLinkMax <= 0 || c.RateLimitIngestMax <= 0 {
		errs = append(errs, errors.New("rate limit maximums must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.AlertsEnabled() && c.AlertWebhookSecret == "" {
		errs = append(errs, errors.New("ALERT_WEBHOOK_SECRET is required when ALERT_WEBHOOK_URL is set"))
	}
	if !strings.HasPrefix(c.LinkErrorPath, "/") {
		errs = append(errs, errors.New("LINK_ERROR_PATH must be an absolute path"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
