package urlcheck

import (
	"strings"
	"testing"
)

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func TestValidate_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too long", "https://example.com/" + strings.Repeat("a", MaxURLLength)},
		{"too short", "a"},
		{"bad protocol", "ftp://files.example.com/x"},
		{"unparseable", "https://example.com/100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			report := Validate(tt.url)
			if report.IsValid {
				t.Fatalf("Validate(%q) should be invalid", tt.url)
			}
			if len(report.Issues) == 0 {
				t.Error("invalid report should carry issues")
			}
		})
	}
}

func TestValidate_LengthBoundary(t *testing.T) {
	t.Parallel()

	prefix := "https://example.com/"
	atLimit := prefix + strings.Repeat("a", MaxURLLength-len(prefix))
	overLimit := atLimit + "a"

	if r := Validate(atLimit); !r.IsValid {
		t.Errorf("URL of exactly %d chars should be valid, issues: %v", MaxURLLength, r.Issues)
	}
	if r := Validate(overLimit); r.IsValid {
		t.Errorf("URL of %d chars should be invalid", len(overLimit))
	}
}

func TestValidate_Shortener(t *testing.T) {
	t.Parallel()

	report := Validate("https://bit.ly/abc")

	if !report.IsValid {
		t.Fatalf("shortener URL should be valid, issues: %v", report.Issues)
	}
	if !containsSubstring(report.Warnings, "shortener") {
		t.Errorf("warnings %v should mention the shortener", report.Warnings)
	}
	if report.EstimatedHops != 2 {
		t.Errorf("EstimatedHops = %d, want 2", report.EstimatedHops)
	}
}

func TestValidate_Warnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		contains string
		hops     int
	}{
		{"localhost", "http://localhost:3000/x", "private", 1},
		{"loopback", "http://127.0.0.1/x", "private", 1},
		{"private 192", "http://192.168.1.10/admin", "private", 1},
		{"private 10", "http://10.1.2.3/admin", "private", 1},
		{"redirect path", "https://example.com/redirect?to=x", "redirect wrapper", 2},
		{"goto path", "https://example.com/goto/abc", "redirect wrapper", 2},
		{"url param", "https://example.com/out?url=https://x.example", "redirect wrapper", 2},
		{"long query", "https://example.com/p?q=" + strings.Repeat("x", MaxQueryLength), "query string", 1},
		{"encoded path", "https://example.com/a%20b", "percent-encoded", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			report := Validate(tt.url)
			if !report.IsValid {
				t.Fatalf("warnings must not fail validity, issues: %v", report.Issues)
			}
			if !containsSubstring(report.Warnings, tt.contains) {
				t.Errorf("warnings %v should contain %q", report.Warnings, tt.contains)
			}
			if report.EstimatedHops != tt.hops {
				t.Errorf("EstimatedHops = %d, want %d", report.EstimatedHops, tt.hops)
			}
		})
	}
}

func TestValidate_HopsNeverLowered(t *testing.T) {
	t.Parallel()

	// Both shortener and wrapper rules fire; the estimate stays at 2.
	report := Validate("https://bit.ly/redirect?url=x")
	if report.EstimatedHops != 2 {
		t.Errorf("EstimatedHops = %d, want 2", report.EstimatedHops)
	}

	clean := Validate("https://example.com/about")
	if clean.EstimatedHops != 1 || len(clean.Warnings) != 0 {
		t.Errorf("clean URL: hops=%d warnings=%v", clean.EstimatedHops, clean.Warnings)
	}
}

func TestValidate_SanitizesFirst(t *testing.T) {
	t.Parallel()

	report := Validate("example.com/a//b")
	if report.Sanitized != "https://example.com/a/b" {
		t.Errorf("Sanitized = %q", report.Sanitized)
	}
	if !report.IsValid {
		t.Errorf("should be valid, issues: %v", report.Issues)
	}
}
