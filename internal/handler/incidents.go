package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/linkpeek/linkpeek/internal/handler/dto"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/repository"
)

// Incident listing limits.
const (
	defaultIncidentLimit = 50
	maxIncidentLimit     = 200
)

// IncidentLister reads incidents for dashboards.
type IncidentLister interface {
	ListIncidents(ctx context.Context, filter repository.IncidentFilter) ([]*model.Incident, error)
}

// IncidentHandler serves the incident listing.
type IncidentHandler struct {
	store  IncidentLister
	logger *slog.Logger
}

// NewIncidentHandler creates a new IncidentHandler.
func NewIncidentHandler(store IncidentLister, logger *slog.Logger) *IncidentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IncidentHandler{store: store, logger: logger.With("component", "handler.incidents")}
}

// List handles GET /api/v1/incidents.
//
// Query parameters:
//   - open: "true" returns only incidents neither resolved nor superseded
//   - severity: comma-separated severities
//   - limit: 1..200, default 50
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.IncidentFilter{
		OpenOnly: q.Get("open") == "true",
		Limit:    defaultIncidentLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxIncidentLimit {
			writeError(w, http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be between 1 and 200", Code: CodeBadRequest})
			return
		}
		filter.Limit = n
	}

	if raw := q.Get("severity"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			sev := model.Severity(strings.TrimSpace(s))
			if !sev.IsValid() {
				writeError(w, http.StatusBadRequest, dto.ErrorResponse{Error: "unknown severity " + strconv.Quote(string(sev)), Code: CodeBadRequest})
				return
			}
			filter.Severities = append(filter.Severities, sev)
		}
	}

	incidents, err := h.store.ListIncidents(r.Context(), filter)
	if err != nil {
		h.logger.Error("list incidents failed", "error", err)
		writeError(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "An internal error occurred", Code: CodeInternal})
		return
	}

	writeJSON(w, http.StatusOK, dto.ToIncidentListResponse(incidents))
}
