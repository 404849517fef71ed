// Package eventlog writes the single-line JSON redirect event log.
//
// Each line carries "timestamp" and "event" followed by the event context.
// Writes are best-effort: a failing writer never affects the caller.
package eventlog

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Redirect event names.
const (
	EventRedirectSuccess     = "redirect_success"
	EventRedirectRateLimited = "redirect_rate_limited"
	EventRedirectNotFound    = "redirect_link_not_found"
	EventRedirectInvalidURL  = "redirect_invalid_destination"
	EventRedirectBadRequest  = "redirect_bad_request"
	EventRedirectError       = "redirect_error"
)

// Logger emits structured events.
type Logger struct {
	logger *slog.Logger
}

// New returns an event logger writing JSON lines to w.
func New(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: replaceAttr,
	})
	return &Logger{logger: slog.New(handler)}
}

// Discard returns a logger that drops every event.
func Discard() *Logger {
	return New(io.Discard)
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	case slog.MessageKey:
		a.Key = "event"
	case slog.LevelKey:
		return slog.Attr{}
	}
	return a
}

// Emit writes one event line.
func (l *Logger) Emit(ctx context.Context, event string, attrs ...slog.Attr) {
	if l == nil {
		return
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, event, attrs...)
}

// Redirect is the context attached to every redirect event.
type Redirect struct {
	LinkID   string
	Duration time.Duration
	Canary   bool
	Reason   string
	Status   int
}

// EmitRedirect writes one redirect event line.
func (l *Logger) EmitRedirect(ctx context.Context, event string, r Redirect) {
	attrs := []slog.Attr{
		slog.String("linkId", r.LinkID),
		slog.Int64("durationMs", r.Duration.Milliseconds()),
		slog.Bool("canary", r.Canary),
	}
	if r.Status != 0 {
		attrs = append(attrs, slog.Int("status", r.Status))
	}
	if r.Reason != "" {
		attrs = append(attrs, slog.String("reason", r.Reason))
	}
	l.Emit(ctx, event, attrs...)
}
