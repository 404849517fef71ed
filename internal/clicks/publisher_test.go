package clicks

import (
	"strings"
	"testing"
	"time"
)

func TestVisitorHash(t *testing.T) {
	t.Parallel()

	ip := "192.168.1.100"
	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"
	morning := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	nextDay := time.Date(2026, 1, 16, 6, 0, 0, 0, time.UTC)

	h := VisitorHash(ip, ua, morning)
	if len(h) != visitorHashLength || !isHex(h) {
		t.Fatalf("hash %q is not %d hex chars", h, visitorHashLength)
	}
	if VisitorHash(ip, ua, evening) != h {
		t.Error("same day should produce the same hash")
	}
	if VisitorHash(ip, ua, nextDay) == h {
		t.Error("hash should rotate daily")
	}
	if VisitorHash("192.168.1.101", ua, morning) == h {
		t.Error("different IPs should produce different hashes")
	}
	// The separator keeps ip/ua boundaries distinct.
	if VisitorHash("1.2.3.4", "5", morning) == VisitorHash("1.2.3.", "45", morning) {
		t.Error("boundary shift should change the hash")
	}
}

func TestSanitizeReferrer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://instagram.com/p/abc?igshid=123#frag", "https://instagram.com/p/abc"},
		{"https://example.com/" + strings.Repeat("a", 600), ("https://example.com/" + strings.Repeat("a", 600))[:500]},
		{"%zz", ""},
	}
	for _, tt := range tests {
		if got := SanitizeReferrer(tt.in); got != tt.want {
			t.Errorf("SanitizeReferrer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCountry(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"us":  "US",
		" GB": "GB",
		"USA": "",
		"1A":  "",
		"":    "",
	}
	for in, want := range tests {
		if got := NormalizeCountry(in); got != want {
			t.Errorf("NormalizeCountry(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	if got := TruncateUserAgent(strings.Repeat("x", 700)); len(got) != maxMetaLength {
		t.Errorf("len = %d, want %d", len(got), maxMetaLength)
	}
	if got := TruncateUserAgent("short"); got != "short" {
		t.Errorf("got %q", got)
	}
}
