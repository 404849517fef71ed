// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/linkpeek/linkpeek/internal/browser"
	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/risk"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Redirect   string `json:"redirect,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// RedirectRequest is the body of POST /api/v1/redirect.
type RedirectRequest struct {
	LinkID    string `json:"linkId" validate:"required,max=64"`
	UserAgent string `json:"userAgent,omitempty" validate:"max=1024"`
	Referrer  string `json:"referrer,omitempty" validate:"max=2048"`
	Country   string `json:"country,omitempty" validate:"omitempty,len=2,alpha"`
}

// RedirectResponse tells the client where to navigate.
type RedirectResponse struct {
	URL     string           `json:"url"`
	Success bool             `json:"success"`
	Browser *browser.Info    `json:"browser,omitempty"`
	Risk    *risk.Assessment `json:"risk,omitempty"`
}

// ClickRequest is the body of POST /api/v1/clicks.
type ClickRequest struct {
	LinkID           string `json:"linkId" validate:"required,max=64"`
	Success          bool   `json:"success"`
	LoadTimeMs       *int   `json:"loadTimeMs,omitempty" validate:"omitempty,min=0,max=600000"`
	UserAgent        string `json:"userAgent,omitempty" validate:"max=1024"`
	Referrer         string `json:"referrer,omitempty" validate:"max=2048"`
	Country          string `json:"country,omitempty" validate:"omitempty,len=2,alpha"`
	RecoveryStrategy string `json:"recoveryStrategy,omitempty" validate:"omitempty,oneof=intent_url_android clipboard_copy manual_instructions"`
}

// RecoveryAttemptRequest is the body of POST /api/v1/recovery-attempts.
type RecoveryAttemptRequest struct {
	LinkID   string `json:"linkId" validate:"required,max=64"`
	UserID   string `json:"userId,omitempty" validate:"max=64"`
	Strategy string `json:"strategy" validate:"required,oneof=intent_url_android clipboard_copy manual_instructions"`
	Success  bool   `json:"success"`
	Platform string `json:"platform" validate:"max=32"`
	Device   string `json:"device" validate:"max=32"`
	Browser  string `json:"browser" validate:"max=64"`
}

// ToRecoveryAttemptRequest converts a model attempt for the wire.
func ToRecoveryAttemptRequest(a model.RecoveryAttempt) RecoveryAttemptRequest {
	return RecoveryAttemptRequest{
		LinkID:   a.LinkID,
		UserID:   a.UserID,
		Strategy: string(a.Strategy),
		Success:  a.Success,
		Platform: a.Platform,
		Device:   a.Device,
		Browser:  a.Browser,
	}
}

// AcceptedResponse acknowledges a best-effort write.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// InstructionsResponse is returned by GET /api/v1/recovery/instructions.
type InstructionsResponse struct {
	Browser  browser.Info  `json:"browser"`
	Strategy risk.Strategy `json:"strategy"`
	Manual   ManualPlan    `json:"manual"`
}

// ManualPlan is a set of manual steps for the visitor.
type ManualPlan struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

// IncidentResponse represents an incident in API responses.
type IncidentResponse struct {
	ID            string         `json:"id"`
	Platform      string         `json:"platform"`
	Country       string         `json:"country"`
	Device        string         `json:"device"`
	ErrorRate     float64        `json:"errorRate"`
	Severity      model.Severity `json:"severity"`
	SampleSize    int            `json:"sampleSize"`
	AffectedUsers int            `json:"affectedUsers"`
	DetectedAt    time.Time      `json:"detectedAt"`
	ResolvedAt    *time.Time     `json:"resolvedAt,omitempty"`
	SupersededBy  *string        `json:"supersededBy,omitempty"`
	Failures      int            `json:"failures"`
}

// IncidentListResponse wraps a list of incidents.
type IncidentListResponse struct {
	Data []IncidentResponse `json:"data"`
}

// ToIncidentListResponse converts incident models to the list DTO.
func ToIncidentListResponse(incidents []*model.Incident) *IncidentListResponse {
	out := make([]IncidentResponse, len(incidents))
	for i, inc := range incidents {
		out[i] = IncidentResponse{
			ID:            inc.ID,
			Platform:      inc.Platform,
			Country:       inc.Country,
			Device:        inc.Device,
			ErrorRate:     inc.ErrorRate,
			Severity:      inc.Severity,
			SampleSize:    inc.SampleSize,
			AffectedUsers: inc.AffectedUsers,
			DetectedAt:    inc.DetectedAt,
			ResolvedAt:    inc.ResolvedAt,
			SupersededBy:  inc.SupersededBy,
			Failures:      inc.Metadata.Failures,
		}
	}
	return &IncidentListResponse{Data: out}
}
