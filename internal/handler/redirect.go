package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/linkpeek/linkpeek/internal/browser"
	"github.com/linkpeek/linkpeek/internal/eventlog"
	"github.com/linkpeek/linkpeek/internal/handler/dto"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/ratelimit"
	"github.com/linkpeek/linkpeek/internal/risk"
	"github.com/linkpeek/linkpeek/internal/service"
	"github.com/linkpeek/linkpeek/internal/tracker"
	"github.com/linkpeek/linkpeek/internal/urlcheck"
	"github.com/linkpeek/linkpeek/internal/urlnorm"
)

// Redirect endpoint headers.
const (
	CanaryHeader       = "x-linkpeek-redirect"
	CanaryValue        = "canary"
	ResponseTimeHeader = "X-Response-Time"
)

// DefaultLinkErrorPath is the client fallback page for refused destinations.
const DefaultLinkErrorPath = "/link-error.html"

var errRateLimited = errors.New("rate limited")

// LinkResolver loads active links.
type LinkResolver interface {
	ResolveLink(ctx context.Context, id string) (*model.Link, bool, error)
}

// RateLimiter is one budget of the two-tier limit.
type RateLimiter interface {
	Allow(ctx context.Context, id string) (ratelimit.Result, error)
}

// RedirectHandler resolves links to navigable destinations.
type RedirectHandler struct {
	links         LinkResolver
	ipLimiter     RateLimiter
	linkLimiter   RateLimiter
	events        *eventlog.Logger
	logger        *slog.Logger
	linkErrorPath string
}

// NewRedirectHandler creates a new RedirectHandler. An empty linkErrorPath
// uses DefaultLinkErrorPath.
func NewRedirectHandler(links LinkResolver, ipLimiter, linkLimiter RateLimiter, events *eventlog.Logger, logger *slog.Logger, linkErrorPath string) *RedirectHandler {
	if linkErrorPath == "" {
		linkErrorPath = DefaultLinkErrorPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedirectHandler{
		links:         links,
		ipLimiter:     ipLimiter,
		linkLimiter:   linkLimiter,
		events:        events,
		logger:        logger.With("component", "handler.redirect"),
		linkErrorPath: linkErrorPath,
	}
}

// redirectAttempt carries per-request state through the pipeline.
type redirectAttempt struct {
	start  time.Time
	trace  *tracker.Tracker
	linkID string
	canary bool
}

// Redirect handles POST /api/v1/redirect.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	att := &redirectAttempt{
		start:  time.Now(),
		trace:  tracker.New(nil),
		canary: r.Header.Get(CanaryHeader) == CanaryValue,
	}

	// The IP budget is charged before the body is read.
	if res, ok := h.allow(ctx, h.ipLimiter, "ip", getClientIP(r)); !ok {
		h.rateLimited(w, r, att, res)
		return
	}

	var req dto.RedirectRequest
	if err := decodeJSON(r, &req); err != nil {
		att.trace.Fail(tracker.StageParseRequest, err)
		h.finish(w, r, att, http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  CodeBadRequest,
		}, eventlog.EventRedirectBadRequest, "")
		return
	}
	att.linkID = req.LinkID

	if res, ok := h.allow(ctx, h.linkLimiter, "link", req.LinkID); !ok {
		h.rateLimited(w, r, att, res)
		return
	}
	att.trace.Mark(tracker.StageRateLimit)

	link, cacheHit, err := h.links.ResolveLink(ctx, req.LinkID)
	if err != nil {
		att.trace.Fail(tracker.StageLinkLookup, err)
		switch {
		case errors.Is(err, service.ErrLinkNotFound), errors.Is(err, service.ErrLinkInactive):
			h.finish(w, r, att, http.StatusNotFound, dto.ErrorResponse{
				Error: "Link not found",
				Code:  CodeLinkNotFound,
			}, eventlog.EventRedirectNotFound, "")
		default:
			h.logger.Error("link lookup failed", "link_id", req.LinkID, "error", err)
			h.finish(w, r, att, http.StatusInternalServerError, dto.ErrorResponse{
				Error: "An internal error occurred",
				Code:  CodeInternal,
			}, eventlog.EventRedirectError, "")
		}
		return
	}
	att.trace.Mark(tracker.StageLinkLookup)

	normalized := urlnorm.NormalizeRedirect(link.Destination())
	att.trace.Mark(tracker.StageURLNormalize)

	// The written scheme only survives on the raw destination.
	if err := urlcheck.CheckRedirectTarget(link.DestURL, normalized); err != nil {
		att.trace.Fail(tracker.StageURLValidate, err)
		reason := urlcheck.ReasonMalformedURL
		var pe *urlcheck.PolicyError
		if errors.As(err, &pe) {
			reason = pe.Reason
		}
		h.finish(w, r, att, http.StatusBadRequest, dto.ErrorResponse{
			Error:    "Invalid destination URL",
			Code:     CodeInvalidDestination,
			Reason:   reason,
			Redirect: h.linkErrorPath,
		}, eventlog.EventRedirectInvalidURL, reason)
		return
	}
	att.trace.Mark(tracker.StageURLValidate)

	resp := dto.RedirectResponse{URL: normalized, Success: true}
	if req.UserAgent != "" {
		info := browser.DetectStrict(req.UserAgent)
		assessment := risk.Assess(normalized, info, link.HistoricalFailureRate(), link.RedirectChainLength())
		resp.Browser = &info
		resp.Risk = &assessment
	}
	att.trace.Mark(tracker.StageRespond)

	h.logger.Debug("redirect resolved", "link_id", link.ID, "cache_hit", cacheHit, "trace", att.trace.Summary())
	h.finish(w, r, att, http.StatusOK, resp, eventlog.EventRedirectSuccess, "")
}

// allow charges one hit against limiter. Store errors fail open.
func (h *RedirectHandler) allow(ctx context.Context, limiter RateLimiter, kind, id string) (ratelimit.Result, bool) {
	if limiter == nil {
		return ratelimit.Result{Allowed: true}, true
	}
	res, err := limiter.Allow(ctx, id)
	if err != nil {
		h.logger.Warn("rate limit store error", "kind", kind, "error", err)
		return res, true
	}
	return res, res.Allowed
}

func (h *RedirectHandler) rateLimited(w http.ResponseWriter, r *http.Request, att *redirectAttempt, res ratelimit.Result) {
	att.trace.Fail(tracker.StageRateLimit, errRateLimited)
	retry := res.RetryAfterSeconds()
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	h.finish(w, r, att, http.StatusTooManyRequests, dto.ErrorResponse{
		Error:      "Too many requests",
		Code:       CodeRateLimited,
		RetryAfter: retry,
	}, eventlog.EventRedirectRateLimited, "")
}

// finish writes the response and the event line. Every exit of Redirect
// goes through here.
func (h *RedirectHandler) finish(w http.ResponseWriter, r *http.Request, att *redirectAttempt, status int, body any, event, reason string) {
	elapsed := time.Since(att.start)
	w.Header().Set(ResponseTimeHeader, strconv.FormatInt(elapsed.Milliseconds(), 10)+"ms")
	w.Header().Set("Cache-Control", "private, max-age=0")
	if att.canary {
		w.Header().Set(CanaryHeader, CanaryValue)
	}
	writeJSON(w, status, body)

	h.events.EmitRedirect(r.Context(), event, eventlog.Redirect{
		LinkID:   att.linkID,
		Duration: elapsed,
		Canary:   att.canary,
		Reason:   reason,
		Status:   status,
	})
	if status != http.StatusOK {
		h.logger.Debug("redirect refused", "link_id", att.linkID, "status", status, "trace", att.trace.Summary())
	}
}
