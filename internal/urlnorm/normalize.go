// Package urlnorm sanitizes and canonicalizes outbound link destinations.
//
// Every function in this package is total: malformed input degrades to the
// best-effort string produced so far and the anomaly is reported as an Issue,
// never as an error.
package urlnorm

import (
	"net/url"
	"strings"
)

// maxDecodePasses bounds iterative percent-decoding.
const maxDecodePasses = 5

// Issue codes reported by Sanitize.
const (
	IssueControlChars   = "control_chars_removed"
	IssueProtocolAdded  = "protocol_added"
	IssueDecoded        = "percent_decoded"
	IssueDecodeFailed   = "percent_decode_failed"
	IssueUnwrapped      = "wrapper_unwrapped"
	IssueSlashCollapsed = "slashes_collapsed"
	IssueUTMCleaned     = "utm_cleaned"
)

// utmKeys are the campaign parameters subject to cleanup.
var utmKeys = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
}

// Result is the outcome of Sanitize: the best-effort value and the stages
// that changed or failed to change it.
type Result struct {
	Value  string
	Issues []string
}

func (r *Result) note(issue string) {
	for _, existing := range r.Issues {
		if existing == issue {
			return
		}
	}
	r.Issues = append(r.Issues, issue)
}

// Normalizer unwraps a configurable set of social-media link wrappers.
type Normalizer struct {
	wrappers map[string]bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTikTok also unwraps vm.tiktok.com share links. The redirect endpoint
// uses this variant.
func WithTikTok() Option {
	return func(n *Normalizer) {
		n.wrappers["vm.tiktok.com"] = true
	}
}

// New creates a Normalizer that unwraps the Instagram and Facebook wrappers.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		wrappers: map[string]bool{
			"l.instagram.com": true,
			"l.facebook.com":  true,
			"lm.facebook.com": true,
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var (
	defaultNormalizer  = New()
	redirectNormalizer = New(WithTikTok())
)

// Normalize sanitizes raw with the default wrapper set.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// NormalizeRedirect sanitizes raw with the redirect-endpoint wrapper set,
// which includes TikTok.
func NormalizeRedirect(raw string) string {
	return redirectNormalizer.Normalize(raw)
}

// Normalize returns the sanitized form of raw. Empty input yields "".
func (n *Normalizer) Normalize(raw string) string {
	return n.Sanitize(raw).Value
}

// Sanitize runs every normalization stage and reports what each one did.
func (n *Normalizer) Sanitize(raw string) Result {
	var res Result

	s := ensureProtocol(&res, n.clean(&res, raw))
	if s == "" {
		return res
	}

	// Unwrap before decoding so reserved characters inside the wrapped value
	// stay intact.
	if s = n.unwrapAll(&res, s); s == "" {
		return res
	}

	if decoded := decodeRepeated(&res, s); decoded != s {
		s = ensureProtocol(&res, n.clean(&res, decoded))
		// Wrappers that arrive fully percent-encoded only show up now.
		if s = n.unwrapAll(&res, s); s == "" {
			return res
		}
	}

	s = collapseSlashes(&res, s)
	s = cleanUTM(&res, s)

	res.Value = s
	return res
}

// clean trims whitespace and strips ASCII control characters and encoded
// null bytes.
func (n *Normalizer) clean(res *Result, s string) string {
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))
	changed := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f {
			changed = true
			continue
		}
		if c == '%' && i+2 < len(s) && s[i+1] == '0' && s[i+2] == '0' {
			changed = true
			i += 2
			continue
		}
		b.WriteByte(c)
	}
	if changed {
		res.note(IssueControlChars)
	}
	return strings.TrimSpace(b.String())
}

// ensureProtocol prepends https:// unless an http(s) scheme is present.
func ensureProtocol(res *Result, s string) string {
	if s == "" || hasHTTPScheme(s) {
		return s
	}
	res.note(IssueProtocolAdded)
	return "https://" + s
}

func hasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// decodeRepeated percent-decodes until a fixed point, at most
// maxDecodePasses times. A decoding failure keeps the last successfully
// decoded value. Input still encoded after the last pass is returned
// undecoded, so a second normalization cannot decode it further.
func decodeRepeated(res *Result, s string) string {
	current := s
	for i := 0; i < maxDecodePasses; i++ {
		if !strings.Contains(current, "%") {
			break
		}
		decoded, err := url.PathUnescape(current)
		if err != nil {
			res.note(IssueDecodeFailed)
			break
		}
		if decoded == current {
			break
		}
		current = decoded
	}

	if strings.Contains(current, "%") {
		if next, err := url.PathUnescape(current); err == nil && next != current {
			res.note(IssueDecodeFailed)
			return s
		}
	}
	if current != s {
		res.note(IssueDecoded)
	}
	return current
}

// unwrapAll replaces s with the inner destination until no wrapper matches.
// Every inner value is shorter than the wrapper URL holding it, so the loop
// ends. Returns "" when a wrapper holds only whitespace or control chars.
func (n *Normalizer) unwrapAll(res *Result, s string) string {
	for {
		inner, ok := n.unwrap(s)
		if !ok {
			return s
		}
		res.note(IssueUnwrapped)
		s = ensureProtocol(res, n.clean(res, inner))
		if s == "" {
			return ""
		}
	}
}

// unwrap extracts the "u" parameter of a known wrapper URL.
func (n *Normalizer) unwrap(s string) (string, bool) {
	parsed, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	if !n.wrappers[strings.ToLower(parsed.Hostname())] {
		return "", false
	}
	inner := parsed.Query().Get("u")
	if strings.TrimSpace(inner) == "" {
		return "", false
	}
	return inner, true
}

// collapseSlashes collapses runs of "/" in the path component only.
func collapseSlashes(res *Result, s string) string {
	sep := strings.Index(s, "://")
	if sep < 0 {
		return s
	}
	authorityStart := sep + 3

	pathStart := strings.IndexAny(s[authorityStart:], "/?#")
	if pathStart < 0 || s[authorityStart+pathStart] != '/' {
		return s
	}
	pathStart += authorityStart

	pathEnd := len(s)
	if i := strings.IndexAny(s[pathStart:], "?#"); i >= 0 {
		pathEnd = pathStart + i
	}

	path := s[pathStart:pathEnd]
	if !strings.Contains(path, "//") {
		return s
	}

	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(path[i])
	}

	res.note(IssueSlashCollapsed)
	return s[:pathStart] + b.String() + s[pathEnd:]
}

// cleanUTM drops empty UTM parameters and repeated UTM keys (first wins).
// Every other parameter is kept verbatim in its original position.
func cleanUTM(res *Result, s string) string {
	q := strings.IndexByte(s, '?')
	if q < 0 {
		return s
	}

	fragment := ""
	query := s[q+1:]
	if h := strings.IndexByte(query, '#'); h >= 0 {
		fragment = query[h:]
		query = query[:h]
	}
	if query == "" {
		return s
	}

	pairs := strings.Split(query, "&")
	kept := make([]string, 0, len(pairs))
	seen := make(map[string]bool)
	changed := false

	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		lowerKey := strings.ToLower(key)
		if !utmKeys[lowerKey] {
			kept = append(kept, pair)
			continue
		}
		if value == "" || seen[lowerKey] {
			changed = true
			continue
		}
		seen[lowerKey] = true
		kept = append(kept, pair)
	}

	if !changed {
		return s
	}
	res.note(IssueUTMCleaned)

	base := s[:q]
	if len(kept) == 0 {
		return base + fragment
	}
	return base + "?" + strings.Join(kept, "&") + fragment
}
