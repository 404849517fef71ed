package alert

import (
	"net"
	"net/http"
	"time"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 10 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
)

// Header names for alert requests.
const (
	HeaderSignature  = "X-Linkpeek-Signature"
	HeaderTimestamp  = "X-Linkpeek-Timestamp"
	HeaderDeliveryID = "X-Linkpeek-Delivery-Id"
	HeaderEvent      = "X-Linkpeek-Event"
)

// NewHTTPClient creates an HTTP client for alert delivery. It does not
// follow redirects.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
