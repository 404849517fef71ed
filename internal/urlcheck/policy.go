package urlcheck

import (
	"errors"
	"net/url"
	"strings"
)

// Policy reason codes returned to clients.
const (
	ReasonDangerousScheme = "dangerous_scheme"
	ReasonInvalidProtocol = "invalid_protocol"
	ReasonMissingHostname = "missing_hostname"
	ReasonMalformedURL    = "malformed_url"
)

var dangerousSchemes = map[string]bool{
	"javascript": true,
	"data":       true,
	"vbscript":   true,
	"file":       true,
}

// ErrPolicyViolation is matched by every PolicyError via errors.Is.
var ErrPolicyViolation = errors.New("redirect target violates policy")

// PolicyError describes why a redirect target was refused.
type PolicyError struct {
	Reason string
	Detail string
}

func (e *PolicyError) Error() string {
	if e.Detail == "" {
		return "redirect target refused: " + e.Reason
	}
	return "redirect target refused: " + e.Reason + ": " + e.Detail
}

// Is reports whether target is ErrPolicyViolation.
func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyViolation
}

// ExplicitScheme returns the scheme written at the start of raw, if any.
// "host:8080" style prefixes are not treated as schemes.
func ExplicitScheme(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return "", false
	}
	for i := 0; i < colon; i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", false
		}
	}
	if rest := s[colon+1:]; rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		return "", false
	}
	return strings.ToLower(s[:colon]), true
}

// CheckRedirectTarget applies the redirect allow-list to a destination.
// raw is the stored destination and normalized its sanitized form; both are
// inspected for dangerous schemes because normalization coerces missing
// protocols to https.
func CheckRedirectTarget(raw, normalized string) error {
	rawScheme, hasRawScheme := ExplicitScheme(raw)
	if hasRawScheme && dangerousSchemes[rawScheme] {
		return &PolicyError{Reason: ReasonDangerousScheme, Detail: rawScheme}
	}
	if scheme, ok := ExplicitScheme(normalized); ok && dangerousSchemes[scheme] {
		return &PolicyError{Reason: ReasonDangerousScheme, Detail: scheme}
	}
	if hasRawScheme && rawScheme != "http" && rawScheme != "https" {
		return &PolicyError{Reason: ReasonInvalidProtocol, Detail: rawScheme}
	}

	parsed, err := url.Parse(normalized)
	if err != nil {
		return &PolicyError{Reason: ReasonMalformedURL}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &PolicyError{Reason: ReasonInvalidProtocol, Detail: scheme}
	}

	if parsed.Hostname() == "" {
		return &PolicyError{Reason: ReasonMissingHostname}
	}

	return nil
}
