package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linkpeek/linkpeek/internal/browser"
	"github.com/linkpeek/linkpeek/internal/handler/dto"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/recovery"
	"github.com/linkpeek/linkpeek/internal/risk"
)

// RecoveryAttemptStore persists recovery attempts.
type RecoveryAttemptStore interface {
	InsertRecoveryAttempt(ctx context.Context, attempt *model.RecoveryAttempt) error
}

// RecoveryHandler serves the recovery client.
type RecoveryHandler struct {
	store  RecoveryAttemptStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRecoveryHandler creates a new RecoveryHandler.
func NewRecoveryHandler(store RecoveryAttemptStore, logger *slog.Logger) *RecoveryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryHandler{
		store:  store,
		logger: logger.With("component", "handler.recovery"),
		now:    time.Now,
	}
}

// LogAttempt handles POST /api/v1/recovery-attempts.
//
// Logging is best-effort for the visitor: malformed bodies and storage
// failures are recorded internally and the response is always 202.
func (h *RecoveryHandler) LogAttempt(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusAccepted, dto.AcceptedResponse{Accepted: true})

	var req dto.RecoveryAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Debug("recovery attempt rejected", "error", err)
		return
	}

	now := h.now().UTC()
	attempt := &model.RecoveryAttempt{
		ID:        ulid.Make().String(),
		LinkID:    req.LinkID,
		UserID:    req.UserID,
		Strategy:  model.RecoveryStrategy(req.Strategy),
		Success:   req.Success,
		Platform:  req.Platform,
		Device:    req.Device,
		Browser:   req.Browser,
		CreatedAt: now,
	}
	if err := h.store.InsertRecoveryAttempt(r.Context(), attempt); err != nil {
		h.logger.Warn("recovery attempt not stored", "link_id", req.LinkID, "strategy", req.Strategy, "error", err)
	}
}

// Instructions handles GET /api/v1/recovery/instructions?ua=. The request's
// own User-Agent is used when ua is absent.
func (h *RecoveryHandler) Instructions(w http.ResponseWriter, r *http.Request) {
	ua := r.URL.Query().Get("ua")
	if ua == "" {
		ua = r.UserAgent()
	}

	info := browser.DetectStrict(ua)
	plan := recovery.Instructions(info.Platform, info.Name)

	writeJSON(w, http.StatusOK, dto.InstructionsResponse{
		Browser:  info,
		Strategy: risk.RecoveryStrategy(info),
		Manual:   dto.ManualPlan{Title: plan.Title, Steps: plan.Steps},
	})
}
