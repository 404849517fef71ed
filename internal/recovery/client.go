// Package recovery drives the visitor-side escape from in-app browsers:
// an Android intent rewrite, a clipboard backup, and a log row per attempt.
//
// The package is environment-agnostic. Browser capabilities are injected as
// interfaces so the same flow runs behind a WebView bridge or in tests.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/linkpeek/linkpeek/internal/browser"
	"github.com/linkpeek/linkpeek/internal/model"
)

// ErrNoHost is returned when a destination cannot be rewritten as an intent.
var ErrNoHost = errors.New("destination has no host")

// Navigator performs a history-replacing navigation.
type Navigator interface {
	Replace(target string) error
}

// Clipboard is the asynchronous clipboard API.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// LegacyClipboard is the hidden-textarea execCommand("copy") fallback.
type LegacyClipboard interface {
	ExecCopy(text string) bool
}

// AttemptLogger records recovery attempts. Failures are ignored by Client.
type AttemptLogger interface {
	LogAttempt(ctx context.Context, attempt model.RecoveryAttempt) error
}

// Visit describes the page the client is recovering.
type Visit struct {
	LinkID      string
	UserID      string
	Destination string
	Browser     browser.Info
}

// Client runs recovery strategies for a single visit.
type Client struct {
	visit     Visit
	navigator Navigator
	clipboard Clipboard
	legacy    LegacyClipboard
	attempts  AttemptLogger
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClipboard sets the clipboard implementations. Either may be nil.
func WithClipboard(c Clipboard, legacy LegacyClipboard) Option {
	return func(cl *Client) {
		cl.clipboard = c
		cl.legacy = legacy
	}
}

// WithAttemptLogger sets where attempts are recorded.
func WithAttemptLogger(l AttemptLogger) Option {
	return func(cl *Client) { cl.attempts = l }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithClock overrides time.Now for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// NewClient creates a recovery client for visit.
func NewClient(visit Visit, nav Navigator, opts ...Option) *Client {
	c := &Client{
		visit:     visit,
		navigator: nav,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AttemptRecovery runs every applicable strategy in order. It reports true
// only when an Android intent navigation was issued; false means the caller
// should show manual instructions.
//
// The intent attempt is logged as successful once the URL is built and
// handed to the navigator. Browsers do not report whether the intent was
// honored.
func (c *Client) AttemptRecovery(ctx context.Context) bool {
	applied := false

	if c.visit.Browser.Platform == browser.PlatformAndroid && c.navigator != nil {
		intent, err := IntentURL(c.visit.Destination)
		if err == nil {
			if navErr := c.navigator.Replace(intent); navErr != nil {
				c.logger.Debug("intent navigation failed", "error", navErr)
			} else {
				applied = true
			}
		}
		c.log(ctx, model.RecoveryIntentURLAndroid, err == nil)
	}

	c.log(ctx, model.RecoveryClipboardCopy, c.copyDestination(ctx))

	return applied
}

// LogManualInstructions records that manual instructions were shown.
func (c *Client) LogManualInstructions(ctx context.Context) {
	c.log(ctx, model.RecoveryManualInstructions, true)
}

func (c *Client) copyDestination(ctx context.Context) bool {
	if c.clipboard != nil {
		err := c.clipboard.WriteText(ctx, c.visit.Destination)
		if err == nil {
			return true
		}
		c.logger.Debug("clipboard write failed, trying legacy copy", "error", err)
	}
	if c.legacy != nil {
		return c.legacy.ExecCopy(c.visit.Destination)
	}
	return false
}

func (c *Client) log(ctx context.Context, strategy model.RecoveryStrategy, success bool) {
	if c.attempts == nil {
		return
	}
	attempt := model.RecoveryAttempt{
		LinkID:    c.visit.LinkID,
		UserID:    c.visit.UserID,
		Strategy:  strategy,
		Success:   success,
		Platform:  c.visit.Browser.Platform,
		Device:    c.visit.Browser.Device,
		Browser:   c.visit.Browser.Name,
		CreatedAt: c.now().UTC(),
	}
	if err := c.attempts.LogAttempt(ctx, attempt); err != nil {
		c.logger.Debug("recovery attempt not logged", "strategy", strategy, "error", err)
	}
}

// IntentURL rewrites an http(s) destination as an Android VIEW intent.
func IntentURL(destination string) (string, error) {
	u, err := url.Parse(destination)
	if err != nil {
		return "", fmt.Errorf("parse destination: %w", err)
	}
	if u.Host == "" {
		return "", ErrNoHost
	}

	target := u.Host + u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return "intent://" + target + "#Intent;scheme=https;action=android.intent.action.VIEW;end", nil
}
