// Package urlcheck validates link destinations structurally and heuristically.
package urlcheck

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/linkpeek/linkpeek/internal/urlnorm"
)

// Validation limits.
const (
	// MaxURLLength is the maximum accepted length of a sanitized URL.
	MaxURLLength = 2048

	// MinURLLength is the minimum accepted length of a sanitized URL.
	MinURLLength = 10

	// MaxQueryLength is the query length above which a warning is raised.
	MaxQueryLength = 500
)

// knownShorteners lists link shorteners that add at least one hop.
var knownShorteners = map[string]bool{
	"bit.ly":      true,
	"tinyurl.com": true,
	"t.co":        true,
	"goo.gl":      true,
	"ow.ly":       true,
	"is.gd":       true,
	"buff.ly":     true,
	"rebrand.ly":  true,
	"cutt.ly":     true,
	"rb.gy":       true,
	"tiny.cc":     true,
	"shorturl.at": true,
}

// Report is the outcome of Validate.
type Report struct {
	IsValid       bool     `json:"isValid"`
	Sanitized     string   `json:"sanitized"`
	Issues        []string `json:"issues"`
	Warnings      []string `json:"warnings"`
	EstimatedHops int      `json:"estimatedHops"`
}

func (r *Report) fail(msg string) {
	r.IsValid = false
	r.Issues = append(r.Issues, msg)
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// raiseHops only ever increases the hop estimate.
func (r *Report) raiseHops(n int) {
	if n > r.EstimatedHops {
		r.EstimatedHops = n
	}
}

// Validate sanitizes raw and reports structural problems and warnings.
// It never returns an error; problems are carried in the Report.
func Validate(raw string) Report {
	report := Report{
		IsValid:       true,
		Issues:        []string{},
		Warnings:      []string{},
		EstimatedHops: 1,
	}

	if strings.TrimSpace(raw) == "" {
		report.fail("URL is required")
		return report
	}

	if scheme, ok := ExplicitScheme(raw); ok && scheme != "http" && scheme != "https" {
		report.fail(fmt.Sprintf("protocol %q is not allowed", scheme))
	}

	sanitized := urlnorm.Normalize(raw)
	report.Sanitized = sanitized

	if len(sanitized) > MaxURLLength {
		report.fail(fmt.Sprintf("URL exceeds maximum length of %d characters", MaxURLLength))
	}
	if len(sanitized) < MinURLLength {
		report.fail(fmt.Sprintf("URL is shorter than %d characters", MinURLLength))
	}

	parsed, err := url.Parse(sanitized)
	if err != nil {
		report.fail("URL could not be parsed")
		return report
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		report.fail(fmt.Sprintf("protocol %q is not allowed", parsed.Scheme))
	}

	host := strings.ToLower(parsed.Hostname())
	if isLocalHost(host) {
		report.warn("URL points to localhost or a private network address")
	}

	if knownShorteners[strings.TrimPrefix(host, "www.")] {
		report.warn("URL uses a link shortener, which adds a redirect hop")
		report.raiseHops(2)
	}

	if looksLikeRedirectWrapper(parsed) {
		report.warn("URL appears to be a redirect wrapper, which adds a redirect hop")
		report.raiseHops(2)
	}

	if len(parsed.RawQuery) > MaxQueryLength {
		report.warn(fmt.Sprintf("query string exceeds %d characters", MaxQueryLength))
	}

	if strings.Contains(parsed.EscapedPath(), "%") {
		report.warn("path contains percent-encoded characters")
	}

	return report
}

// isLocalHost reports loopback and common private-range hosts.
func isLocalHost(host string) bool {
	switch {
	case host == "localhost", host == "::1":
		return true
	case strings.HasPrefix(host, "127."),
		strings.HasPrefix(host, "192.168."),
		strings.HasPrefix(host, "10."):
		return true
	}
	return false
}

// looksLikeRedirectWrapper flags URLs whose path or query forwards elsewhere.
func looksLikeRedirectWrapper(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	if strings.Contains(path, "/redirect") || strings.Contains(path, "/goto") {
		return true
	}

	query := u.Query()
	if query.Has("url") || query.Has("redirect") {
		return true
	}
	return strings.Contains(strings.ToLower(u.RawQuery), "redirect")
}
