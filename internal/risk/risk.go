// Package risk scores redirect risk and selects recovery strategies for
// in-app browsers.
package risk

import (
	"math"
	"net/url"
	"strings"

	"github.com/linkpeek/linkpeek/internal/browser"
)

// Score contributions.
const (
	inAppWeight         = 30
	hostileAppWeight    = 20
	failureRateWeight   = 0.5
	longQueryWeight     = 10
	deepPathWeight      = 5
	unparseableWeight   = 20
	longQueryThreshold  = 200
	deepPathThreshold   = 5
	fallbackScoreCutoff = 70
	maxChainLength      = 2
)

// Strategy names.
const (
	StrategyNone          = "none"
	StrategyDeepLinkIOS   = "deep_link_ios"
	StrategyFallbackUI    = "fallback_ui"
	StrategyIntentURL     = "intent_url"
	StrategyClipboardCopy = "clipboard_copy"
)

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Strategy is the recovery action chosen for a browser.
type Strategy struct {
	Strategy     string `json:"strategy"`
	Confidence   string `json:"confidence"`
	Instructions string `json:"instructions"`
}

// Assessment bundles the risk score, fallback decision and recovery strategy.
type Assessment struct {
	Score       int      `json:"score"`
	UseFallback bool     `json:"useFallback"`
	Recovery    Strategy `json:"recovery"`
}

// hostileApps are in-app browsers known to block outbound navigation.
var hostileApps = []string{browser.AppInstagram, browser.AppTikTok}

// Calculate returns a risk score in [0,100]. historicalFailureRate is a
// percentage; higher rates never lower the score.
func Calculate(rawURL string, info browser.Info, historicalFailureRate float64) int {
	score := 0.0

	if info.IsInAppBrowser {
		score += inAppWeight
	}
	if info.IsApp(hostileApps...) {
		score += hostileAppWeight
	}
	if historicalFailureRate > 0 {
		score += historicalFailureRate * failureRateWeight
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		score += unparseableWeight
	} else {
		if len(parsed.RawQuery) > longQueryThreshold {
			score += longQueryWeight
		}
		if pathSegments(parsed.Path) > deepPathThreshold {
			score += deepPathWeight
		}
	}

	return clamp(score)
}

// ShouldUseFallback reports whether the client should go straight to the
// fallback page instead of navigating.
func ShouldUseFallback(info browser.Info, score, chainLength int) bool {
	return score > fallbackScoreCutoff ||
		info.IsApp(hostileApps...) ||
		chainLength > maxChainLength
}

// RecoveryStrategy selects a recovery action from the platform and host app.
// The score plays no part in the decision.
func RecoveryStrategy(info browser.Info) Strategy {
	switch {
	case !info.IsInAppBrowser:
		return Strategy{
			Strategy:     StrategyNone,
			Confidence:   ConfidenceHigh,
			Instructions: "No recovery needed.",
		}
	case info.Platform == browser.PlatformIOS && info.IsApp(browser.AppInstagram, browser.AppFacebook):
		return Strategy{
			Strategy:     StrategyDeepLinkIOS,
			Confidence:   ConfidenceMedium,
			Instructions: "Tap the ... menu and choose \"Open in external browser\".",
		}
	case info.Platform == browser.PlatformIOS:
		return Strategy{
			Strategy:     StrategyFallbackUI,
			Confidence:   ConfidenceHigh,
			Instructions: "Tap the share icon and choose \"Open in Safari\".",
		}
	case info.Platform == browser.PlatformAndroid:
		return Strategy{
			Strategy:     StrategyIntentURL,
			Confidence:   ConfidenceHigh,
			Instructions: "Opening in your default browser.",
		}
	default:
		return Strategy{
			Strategy:     StrategyClipboardCopy,
			Confidence:   ConfidenceLow,
			Instructions: "Copy the link and paste it into your browser.",
		}
	}
}

// Assess computes the score, fallback decision and recovery strategy together.
func Assess(rawURL string, info browser.Info, historicalFailureRate float64, chainLength int) Assessment {
	score := Calculate(rawURL, info, historicalFailureRate)
	return Assessment{
		Score:       score,
		UseFallback: ShouldUseFallback(info, score, chainLength),
		Recovery:    RecoveryStrategy(info),
	}
}

func pathSegments(path string) int {
	n := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

// clamp rounds score into [0,100]. NaN maps to 0.
func clamp(score float64) int {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 100:
		return 100
	}
	return int(math.Round(score))
}
