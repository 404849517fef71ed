package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/linkpeek/linkpeek/internal/browser"
	"github.com/linkpeek/linkpeek/internal/clicks"
	"github.com/linkpeek/linkpeek/internal/handler/dto"
)

// OutcomePublisher enqueues redirect outcomes without blocking.
type OutcomePublisher interface {
	PublishAsync(event clicks.OutcomePayload)
}

// ClickHandler records redirect outcomes reported by the client.
type ClickHandler struct {
	publisher OutcomePublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewClickHandler creates a new ClickHandler.
func NewClickHandler(publisher OutcomePublisher, logger *slog.Logger) *ClickHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClickHandler{
		publisher: publisher,
		logger:    logger.With("component", "handler.clicks"),
		now:       time.Now,
	}
}

// Record handles POST /api/v1/clicks. Publishing is fire-and-forget, so a
// valid body is always accepted.
func (h *ClickHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req dto.ClickRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: CodeBadRequest})
		return
	}

	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	ref := req.Referrer
	if ref == "" {
		ref = r.Referer()
	}
	country := req.Country
	if country == "" {
		country = r.Header.Get("CF-IPCountry")
	}

	info := browser.DetectStrict(ua)
	clickedAt := h.now()

	h.publisher.PublishAsync(clicks.OutcomePayload{
		LinkID:      req.LinkID,
		Success:     req.Success,
		InApp:       info.IsInAppBrowser,
		LoadTimeMs:  req.LoadTimeMs,
		Platform:    info.Platform,
		Browser:     info.Name,
		Device:      info.Device,
		Country:     clicks.NormalizeCountry(country),
		UserAgent:   clicks.TruncateUserAgent(ua),
		Referrer:    clicks.SanitizeReferrer(ref),
		VisitorHash: clicks.VisitorHash(getClientIP(r), ua, clickedAt),
		Recovery:    req.RecoveryStrategy,
		ClickedAt:   clickedAt.UnixMilli(),
	})

	writeJSON(w, http.StatusAccepted, dto.AcceptedResponse{Accepted: true})
}
