// Package browser classifies User-Agent strings, with emphasis on in-app
// browsers and WebViews that break normal navigation.
package browser

import (
	"regexp"
	"strings"
)

// Platform values.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformDesktop = "desktop"
	PlatformUnknown = "unknown"
)

// Device values.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

// Engine values.
const (
	EngineWebKit  = "WebKit"
	EngineBlink   = "Blink"
	EngineGecko   = "Gecko"
	EnginePresto  = "Presto"
	EngineUnknown = "unknown"
)

// In-app browser host applications.
const (
	AppFacebook  = "Facebook"
	AppInstagram = "Instagram"
	AppTwitter   = "Twitter"
	AppLinkedIn  = "LinkedIn"
	AppSnapchat  = "Snapchat"
	AppTikTok    = "TikTok"
	AppPinterest = "Pinterest"
	AppLINE      = "LINE"
	AppWeChat    = "WeChat"
	AppWhatsApp  = "WhatsApp"
)

// Names reported by DetectStrict for untagged WebViews.
const (
	NameIOSWebView     = "iOS WebView"
	NameAndroidWebView = "Android WebView"
	NameUnknown        = "Unknown"
)

// Info is the classification of a single User-Agent.
type Info struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	IsInAppBrowser bool   `json:"isInAppBrowser"`
	Platform       string `json:"platform"`
	Device         string `json:"device"`
	Engine         string `json:"engine"`
	// App is the host application of an in-app browser, empty otherwise.
	App string `json:"app,omitempty"`
}

// IsApp reports whether the request came from the named app's in-app browser.
func (i Info) IsApp(apps ...string) bool {
	if !i.IsInAppBrowser {
		return false
	}
	for _, app := range apps {
		if i.App == app {
			return true
		}
	}
	return false
}

type inAppRule struct {
	app     string
	match   *regexp.Regexp
	version *regexp.Regexp
}

// inAppRules is scanned in order; the first match wins.
var inAppRules = []inAppRule{
	{AppFacebook, regexp.MustCompile(`fbav|fb_iab|fbios|fb4a`), regexp.MustCompile(`fbav/([\d.]+)`)},
	{AppInstagram, regexp.MustCompile(`instagram`), regexp.MustCompile(`instagram ([\d.]+)`)},
	{AppTwitter, regexp.MustCompile(`twitter`), regexp.MustCompile(`twitter(?:android)?/([\d.]+)`)},
	{AppLinkedIn, regexp.MustCompile(`linkedin`), regexp.MustCompile(`linkedinapp/([\d.]+)`)},
	{AppSnapchat, regexp.MustCompile(`snapchat`), regexp.MustCompile(`snapchat/([\d.]+)`)},
	{AppTikTok, regexp.MustCompile(`tiktok|musical_ly|bytedancewebview`), regexp.MustCompile(`(?:tiktok|musical_ly)[_ /]([\d.]+)`)},
	{AppPinterest, regexp.MustCompile(`pinterest`), regexp.MustCompile(`pinterest/([\d.]+)`)},
	{AppLINE, regexp.MustCompile(`\bline/`), regexp.MustCompile(`\bline/([\d.]+)`)},
	{AppWeChat, regexp.MustCompile(`micromessenger|wechat`), regexp.MustCompile(`micromessenger/([\d.]+)`)},
	{AppWhatsApp, regexp.MustCompile(`whatsapp`), regexp.MustCompile(`whatsapp/([\d.]+)`)},
}

type browserRule struct {
	name    string
	matches func(ua string) bool
	version *regexp.Regexp
	engine  string
}

// browserRules is scanned in order. Chromium-based UAs also carry "chrome"
// and "safari", so Edge must be tested before Chrome and Chrome before Safari.
var browserRules = []browserRule{
	{
		name: "Edge",
		matches: func(ua string) bool {
			return containsAny(ua, "edg/", "edge/", "edga/", "edgios/")
		},
		version: regexp.MustCompile(`edg(?:e|a|ios)?/([\d.]+)`),
		engine:  EngineBlink,
	},
	{
		name: "Chrome",
		matches: func(ua string) bool {
			return containsAny(ua, "chrome/", "crios/")
		},
		version: regexp.MustCompile(`(?:chrome|crios)/([\d.]+)`),
		engine:  EngineBlink,
	},
	{
		name: "Safari",
		matches: func(ua string) bool {
			return strings.Contains(ua, "safari") && !containsAny(ua, "chrome", "crios", "chromium")
		},
		version: regexp.MustCompile(`version/([\d.]+)`),
		engine:  EngineWebKit,
	},
	{
		name: "Firefox",
		matches: func(ua string) bool {
			return containsAny(ua, "firefox/", "fxios/")
		},
		version: regexp.MustCompile(`(?:firefox|fxios)/([\d.]+)`),
		engine:  EngineGecko,
	},
	{
		name: "Opera",
		matches: func(ua string) bool {
			return containsAny(ua, "opr/", "opera")
		},
		version: regexp.MustCompile(`(?:opr/|version/)([\d.]+)`),
		engine:  EnginePresto,
	},
}

var androidWebViewToken = regexp.MustCompile(`\bwv\b`)

// Detect classifies ua. It never fails; unrecognised input yields unknown fields.
func Detect(ua string) Info {
	lower := strings.ToLower(ua)
	info := Info{
		Name:     NameUnknown,
		Platform: PlatformUnknown,
		Device:   DeviceUnknown,
		Engine:   EngineUnknown,
	}
	info.Platform, info.Device = detectPlatform(lower)

	for _, rule := range inAppRules {
		if !rule.match.MatchString(lower) {
			continue
		}
		info.IsInAppBrowser = true
		info.App = rule.app
		info.Name = rule.app + " In-App"
		info.Version = firstGroup(rule.version, lower)
		info.Engine = platformEngine(info.Platform)
		return info
	}

	for _, rule := range browserRules {
		if !rule.matches(lower) {
			continue
		}
		info.Name = rule.name
		info.Version = firstGroup(rule.version, lower)
		info.Engine = rule.engine
		if info.Platform == PlatformIOS {
			// Every iOS browser is WebKit underneath.
			info.Engine = EngineWebKit
		}
		if rule.name == "Opera" && strings.Contains(lower, "opr/") {
			info.Engine = EngineBlink
		}
		return info
	}

	return info
}

// DetectStrict is Detect plus lower-confidence WebView heuristics, applied
// only when no named in-app pattern matched.
func DetectStrict(ua string) Info {
	info := Detect(ua)
	if info.IsInAppBrowser {
		return info
	}

	lower := strings.ToLower(ua)
	switch {
	case info.Platform == PlatformIOS &&
		strings.Contains(lower, "applewebkit") &&
		!strings.Contains(lower, "safari"):
		info.Name = NameIOSWebView
		info.Version = ""
		info.IsInAppBrowser = true
		info.Engine = EngineWebKit
	case info.Platform == PlatformAndroid && androidWebViewToken.MatchString(lower):
		info.Name = NameAndroidWebView
		info.Version = ""
		info.IsInAppBrowser = true
		info.Engine = EngineBlink
	}
	return info
}

func detectPlatform(ua string) (platform, device string) {
	switch {
	case containsAny(ua, "iphone", "ipad", "ipod"):
		if strings.Contains(ua, "ipad") {
			return PlatformIOS, DeviceTablet
		}
		return PlatformIOS, DeviceMobile
	case strings.Contains(ua, "android"):
		if strings.Contains(ua, "mobile") {
			return PlatformAndroid, DeviceMobile
		}
		return PlatformAndroid, DeviceTablet
	case containsAny(ua, "windows", "mac", "linux"):
		return PlatformDesktop, DeviceDesktop
	}
	return PlatformUnknown, DeviceUnknown
}

func platformEngine(platform string) string {
	switch platform {
	case PlatformIOS:
		return EngineWebKit
	case PlatformAndroid:
		return EngineBlink
	}
	return EngineUnknown
}

func firstGroup(re *regexp.Regexp, s string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
