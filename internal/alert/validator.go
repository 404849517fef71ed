package alert

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidScheme is returned when URL scheme is not HTTPS.
	ErrInvalidScheme = errors.New("only HTTPS allowed")
	// ErrPrivateIP is returned when URL is a private IP literal.
	ErrPrivateIP = errors.New("private IP addresses not allowed")
	// ErrLocalhostBlocked is returned when localhost is used.
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	// ErrInvalidURL is returned when URL parsing fails.
	ErrInvalidURL = errors.New("invalid URL format")
	// ErrEmptyHost is returned when URL has no host.
	ErrEmptyHost = errors.New("URL must have a host")
)

var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, network)
	}
	return out
}

// ValidateTargetURL checks an alert endpoint. It enforces HTTPS and rejects
// loopback, link-local and private IP literals. Hostnames are not resolved.
func ValidateTargetURL(target string) error {
	parsed, err := url.Parse(target)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".local") {
		return ErrLocalhostBlocked
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() {
			return ErrLocalhostBlocked
		}
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return ErrPrivateIP
			}
		}
	}
	return nil
}

// ExtractHost returns the host for logging. Full URLs may carry secrets.
func ExtractHost(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
