package urlcheck

import (
	"net"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// MaxHostnameLabels is the label count above which a host is suspicious.
const MaxHostnameLabels = 5

// suspiciousTLDs are free TLDs disproportionately used for phishing.
var suspiciousTLDs = map[string]bool{
	"tk": true,
	"ml": true,
	"ga": true,
	"cf": true,
	"gq": true,
}

// Safety is the outcome of IsURLSafe.
type Safety struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

// IsURLSafe applies phishing heuristics to raw. The result is advisory:
// callers decide whether to block or merely warn.
func IsURLSafe(raw string) Safety {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Hostname() == "" {
		return Safety{Safe: false, Reason: "invalid URL"}
	}

	host := strings.ToLower(parsed.Hostname())

	if hasCyrillic(displayHost(host)) {
		return Safety{Safe: false, Reason: "hostname contains Cyrillic homograph characters"}
	}

	if tld := topLevelDomain(host); suspiciousTLDs[tld] {
		return Safety{Safe: false, Reason: "suspicious top-level domain ." + tld}
	}

	if strings.Count(host, ".")+1 > MaxHostnameLabels {
		return Safety{Safe: false, Reason: "excessive number of subdomains"}
	}

	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return Safety{Safe: false, Reason: "hostname is a bare IP address"}
	}

	return Safety{Safe: true}
}

// displayHost decodes punycode labels so that xn-- encoded homographs are
// inspected as the characters a visitor would see.
func displayHost(host string) string {
	if !strings.Contains(host, "xn--") {
		return host
	}
	decoded, err := idna.Punycode.ToUnicode(host)
	if err != nil {
		return host
	}
	return decoded
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// topLevelDomain returns the last label of the host's public suffix.
func topLevelDomain(host string) string {
	suffix, _ := publicsuffix.PublicSuffix(host)
	if i := strings.LastIndexByte(suffix, '.'); i >= 0 {
		suffix = suffix[i+1:]
	}
	return suffix
}
