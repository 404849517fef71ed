package model

import "time"

// Severity grades an incident by error rate.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is one of the known values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// GroupKey identifies a (platform, country, device) tuple.
type GroupKey struct {
	Platform string `json:"platform"`
	Country  string `json:"country"`
	Device   string `json:"device"`
}

// String renders the key as platform/country/device.
func (k GroupKey) String() string {
	return k.Platform + "/" + k.Country + "/" + k.Device
}

// IncidentMetadata is stored as JSONB alongside the incident.
type IncidentMetadata struct {
	Failures        int                  `json:"failures"`
	DetectionWindow string               `json:"detectionWindow"`
	Thresholds      map[Severity]float64 `json:"thresholds"`
}

// Incident is a detected reliability problem for a GroupKey.
type Incident struct {
	ID            string           `json:"id"`
	Platform      string           `json:"platform"`
	Country       string           `json:"country"`
	Device        string           `json:"device"`
	ErrorRate     float64          `json:"error_rate"`
	Severity      Severity         `json:"severity"`
	SampleSize    int              `json:"sample_size"`
	AffectedUsers int              `json:"affected_users"`
	DetectedAt    time.Time        `json:"detected_at"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
	Metadata      IncidentMetadata `json:"metadata"`
	SupersededBy  *string          `json:"superseded_by,omitempty"`
}

// Key returns the incident's tuple.
func (i *Incident) Key() GroupKey {
	return GroupKey{Platform: i.Platform, Country: i.Country, Device: i.Device}
}

// IsOpen returns true while the incident is neither resolved nor superseded.
func (i *Incident) IsOpen() bool {
	return i.ResolvedAt == nil && i.SupersededBy == nil
}

// GroupStats aggregates redirect records of one GroupKey over a window.
type GroupStats struct {
	Key           GroupKey
	Total         int
	Failures      int
	AffectedUsers int
}

// ErrorRate returns failures as a percentage of total.
func (g GroupStats) ErrorRate() float64 {
	if g.Total == 0 {
		return 0
	}
	return float64(g.Failures) / float64(g.Total) * 100
}
