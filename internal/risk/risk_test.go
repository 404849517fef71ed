package risk

import (
	"math"
	"strings"
	"testing"

	"github.com/linkpeek/linkpeek/internal/browser"
)

var (
	desktopChrome = browser.Info{Name: "Chrome", Platform: browser.PlatformDesktop, Device: browser.DeviceDesktop}
	iosInstagram  = browser.Info{Name: "Instagram In-App", IsInAppBrowser: true, App: browser.AppInstagram, Platform: browser.PlatformIOS}
	iosFacebook   = browser.Info{Name: "Facebook In-App", IsInAppBrowser: true, App: browser.AppFacebook, Platform: browser.PlatformIOS}
	iosSnapchat   = browser.Info{Name: "Snapchat In-App", IsInAppBrowser: true, App: browser.AppSnapchat, Platform: browser.PlatformIOS}
	androidTikTok = browser.Info{Name: "TikTok In-App", IsInAppBrowser: true, App: browser.AppTikTok, Platform: browser.PlatformAndroid}
	androidLine   = browser.Info{Name: "LINE In-App", IsInAppBrowser: true, App: browser.AppLINE, Platform: browser.PlatformAndroid}
	unknownInApp  = browser.Info{Name: "WhatsApp In-App", IsInAppBrowser: true, App: browser.AppWhatsApp, Platform: browser.PlatformUnknown}
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		info browser.Info
		rate float64
		want int
	}{
		{"plain desktop", "https://example.com/", desktopChrome, 0, 0},
		{"generic in-app", "https://example.com/", androidLine, 0, 30},
		{"instagram", "https://example.com/", iosInstagram, 0, 50},
		{"failure rate", "https://example.com/", desktopChrome, 40, 20},
		{"long query", "https://example.com/?q=" + strings.Repeat("x", 201), desktopChrome, 0, 10},
		{"deep path", "https://example.com/a/b/c/d/e/f", desktopChrome, 0, 5},
		{"five segments", "https://example.com/a/b/c/d/e", desktopChrome, 0, 0},
		{"unparseable", "https://example.com/%zz", desktopChrome, 0, 20},
		{"unparseable adds to rest", "https://example.com/%zz", iosInstagram, 10, 75},
		{"clamped", "https://example.com/a/b/c/d/e/f?q=" + strings.Repeat("x", 201), androidTikTok, 100, 100},
		{"huge failure rate", "https://example.com/", desktopChrome, 1e300, 100},
		{"infinite failure rate", "https://example.com/", desktopChrome, math.Inf(1), 100},
		{"nan failure rate", "https://example.com/", desktopChrome, math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Calculate(tt.url, tt.info, tt.rate); got != tt.want {
				t.Errorf("Calculate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCalculate_MonotonicInFailureRate(t *testing.T) {
	t.Parallel()

	urls := []string{"https://example.com/", "https://example.com/%zz", "https://example.com/a/b/c/d/e/f"}
	infos := []browser.Info{desktopChrome, iosInstagram, androidLine, {}}

	var rates []float64
	for r := -10.0; r <= 250; r += 2.5 {
		rates = append(rates, r)
	}
	rates = append(rates, 1e6, 1e18, 1e300, math.MaxFloat64)

	for _, u := range urls {
		for _, info := range infos {
			prev := -1
			for _, rate := range rates {
				score := Calculate(u, info, rate)
				if score < 0 || score > 100 {
					t.Fatalf("score %d out of range for rate %g", score, rate)
				}
				if score < prev {
					t.Fatalf("score decreased from %d to %d at rate %g (%s, %s)", prev, score, rate, u, info.Name)
				}
				prev = score
			}
		}
	}
}

func TestShouldUseFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		info  browser.Info
		score int
		chain int
		want  bool
	}{
		{"low risk", desktopChrome, 10, 1, false},
		{"at cutoff", desktopChrome, 70, 1, false},
		{"above cutoff", desktopChrome, 71, 1, true},
		{"instagram", iosInstagram, 0, 1, true},
		{"tiktok", androidTikTok, 0, 1, true},
		{"facebook low risk", iosFacebook, 30, 1, false},
		{"chain of two", desktopChrome, 0, 2, false},
		{"chain of three", desktopChrome, 0, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ShouldUseFallback(tt.info, tt.score, tt.chain); got != tt.want {
				t.Errorf("ShouldUseFallback() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecoveryStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		info       browser.Info
		strategy   string
		confidence string
	}{
		{"standard browser", desktopChrome, StrategyNone, ConfidenceHigh},
		{"ios instagram", iosInstagram, StrategyDeepLinkIOS, ConfidenceMedium},
		{"ios facebook", iosFacebook, StrategyDeepLinkIOS, ConfidenceMedium},
		{"ios other", iosSnapchat, StrategyFallbackUI, ConfidenceHigh},
		{"android tiktok", androidTikTok, StrategyIntentURL, ConfidenceHigh},
		{"android line", androidLine, StrategyIntentURL, ConfidenceHigh},
		{"unknown platform", unknownInApp, StrategyClipboardCopy, ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RecoveryStrategy(tt.info)
			if got.Strategy != tt.strategy || got.Confidence != tt.confidence {
				t.Errorf("RecoveryStrategy() = %+v, want %s/%s", got, tt.strategy, tt.confidence)
			}
			if got.Instructions == "" {
				t.Error("instructions should not be empty")
			}
		})
	}
}

func TestAssess(t *testing.T) {
	t.Parallel()

	a := Assess("https://example.com/", iosInstagram, 0, 1)
	if a.Score != 50 || !a.UseFallback || a.Recovery.Strategy != StrategyDeepLinkIOS {
		t.Errorf("Assess() = %+v", a)
	}
}
