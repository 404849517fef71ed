package model

import "time"

// RedirectRecord is one click-to-navigation attempt. Append-only.
type RedirectRecord struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	LinkID string    `json:"link_id"`
	TS     time.Time `json:"ts"`

	Success              bool `json:"success"`
	InAppBrowserDetected bool `json:"in_app_browser_detected"`
	LoadTimeMs           *int `json:"load_time_ms,omitempty"`

	Platform string `json:"platform"`
	Browser  string `json:"browser"`
	Device   string `json:"device,omitempty"`
	Country  string `json:"country,omitempty"` // ISO 3166-1 alpha-2

	UserAgent string `json:"user_agent,omitempty"` // truncated 500 chars
	Referrer  string `json:"referrer,omitempty"`   // truncated 500 chars

	// Optional visitor fingerprint used for affected-user counts.
	VisitorHash string `json:"visitor_hash,omitempty"`

	RecoveryStrategyUsed *string `json:"recovery_strategy_used,omitempty"`
}

// RecoveryStrategy names a client-side recovery action.
type RecoveryStrategy string

const (
	RecoveryIntentURLAndroid   RecoveryStrategy = "intent_url_android"
	RecoveryClipboardCopy      RecoveryStrategy = "clipboard_copy"
	RecoveryManualInstructions RecoveryStrategy = "manual_instructions"
)

// IsValid checks if the strategy is one of the logged strategies.
func (s RecoveryStrategy) IsValid() bool {
	switch s {
	case RecoveryIntentURLAndroid, RecoveryClipboardCopy, RecoveryManualInstructions:
		return true
	}
	return false
}

// RecoveryAttempt is a row per client-side recovery action. Append-only.
type RecoveryAttempt struct {
	ID        string           `json:"id"`
	LinkID    string           `json:"link_id"`
	UserID    string           `json:"user_id,omitempty"`
	Strategy  RecoveryStrategy `json:"strategy"`
	Success   bool             `json:"success"`
	Platform  string           `json:"platform"`
	Device    string           `json:"device"`
	Browser   string           `json:"browser"`
	CreatedAt time.Time        `json:"created_at"`
}
