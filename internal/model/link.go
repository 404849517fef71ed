// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// HealthStatus represents the computed reliability of a link destination.
type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthError   HealthStatus = "error"
	HealthUnknown HealthStatus = "unknown"
)

// IsValid checks if the health status is one of the known values.
func (h HealthStatus) IsValid() bool {
	switch h {
	case HealthHealthy, HealthWarning, HealthError, HealthUnknown:
		return true
	}
	return false
}

// Link is a user-owned outbound destination on a profile page.
type Link struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"owner_id"`
	DestURL          string       `json:"dest_url"`
	SanitizedDestURL *string      `json:"sanitized_dest_url,omitempty"`
	IsActive         bool         `json:"is_active"`
	HealthStatus     HealthStatus `json:"health_status"`
	HealthCheckedAt  *time.Time   `json:"health_checked_at,omitempty"`
	AvgRedirectMs    *int         `json:"avg_redirect_time_ms,omitempty"`
	ChainLength      *int         `json:"redirect_chain_length,omitempty"`
	IntegrityScore   *float64     `json:"integrity_score,omitempty"` // success % over the health window
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Destination returns the cached sanitized URL when present, falling back to
// the raw destination.
func (l *Link) Destination() string {
	if l.SanitizedDestURL != nil && *l.SanitizedDestURL != "" {
		return *l.SanitizedDestURL
	}
	return l.DestURL
}

// RedirectChainLength returns the cached chain length, or 1 when unknown.
func (l *Link) RedirectChainLength() int {
	if l.ChainLength == nil || *l.ChainLength < 1 {
		return 1
	}
	return *l.ChainLength
}

// HistoricalFailureRate returns the failure percentage implied by the last
// integrity score, or 0 when the link has not been scored.
func (l *Link) HistoricalFailureRate() float64 {
	if l.IntegrityScore == nil {
		return 0
	}
	rate := 100 - *l.IntegrityScore
	if rate < 0 {
		return 0
	}
	return rate
}

// LinkHealth holds the fields written back by the health checker.
type LinkHealth struct {
	Status         HealthStatus
	CheckedAt      time.Time
	ChainLength    int
	AvgRedirectMs  int
	IntegrityScore *float64 // nil when there were no redirect records
}

// CachedLink is the subset of a link kept in the Redis hash for the redirect
// hot path. Uses string types for Redis hash compatibility.
type CachedLink struct {
	OwnerID     string `redis:"owner_id"`
	DestURL     string `redis:"dest_url"`
	Sanitized   string `redis:"sanitized_dest_url"` // empty when not cached
	Active      string `redis:"is_active"`          // "1" or "0"
	ChainLength string `redis:"redirect_chain_length"`
	Integrity   string `redis:"integrity_score"`
}

// ToLink converts CachedLink to the Link domain model.
func (c *CachedLink) ToLink(id string) *Link {
	link := &Link{
		ID:       id,
		OwnerID:  c.OwnerID,
		DestURL:  c.DestURL,
		IsActive: c.Active == "1",
	}
	if c.Sanitized != "" {
		s := c.Sanitized
		link.SanitizedDestURL = &s
	}
	if n, err := strconv.Atoi(c.ChainLength); err == nil && n > 0 {
		link.ChainLength = &n
	}
	if f, err := strconv.ParseFloat(c.Integrity, 64); err == nil {
		link.IntegrityScore = &f
	}
	return link
}

// ToCachedLink converts the Link domain model to CachedLink.
func (l *Link) ToCachedLink() *CachedLink {
	cached := &CachedLink{
		OwnerID: l.OwnerID,
		DestURL: l.DestURL,
		Active:  boolToString(l.IsActive),
	}
	if l.SanitizedDestURL != nil {
		cached.Sanitized = *l.SanitizedDestURL
	}
	if l.ChainLength != nil {
		cached.ChainLength = strconv.Itoa(*l.ChainLength)
	}
	if l.IntegrityScore != nil {
		cached.Integrity = strconv.FormatFloat(*l.IntegrityScore, 'f', 2, 64)
	}
	return cached
}

// boolToString converts boolean to "1" or "0".
func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
