// Package health inspects link destinations and writes back health fields.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Chain inspection limits.
const (
	DefaultChainTimeout = 3 * time.Second
	DefaultMaxHops      = 10
)

// ErrTooManyHops is recorded when a chain exceeds the hop limit.
var ErrTooManyHops = errors.New("redirect chain exceeds hop limit")

// Hop is one request in a redirect chain.
type Hop struct {
	URL      string
	Status   int
	Duration time.Duration
}

// Chain is the result of following a destination's redirects.
type Chain struct {
	Hops []Hop
	// Err is set when inspection soft-failed; Hops then holds a single
	// entry for the starting URL.
	Err error
}

// Length is the number of URLs in the chain, at least 1.
func (c Chain) Length() int {
	if len(c.Hops) == 0 {
		return 1
	}
	return len(c.Hops)
}

// FinalStatus is the status of the last hop, 0 when unknown.
func (c Chain) FinalStatus() int {
	if len(c.Hops) == 0 {
		return 0
	}
	return c.Hops[len(c.Hops)-1].Status
}

// Total is the summed hop duration.
func (c Chain) Total() time.Duration {
	var d time.Duration
	for _, h := range c.Hops {
		d += h.Duration
	}
	return d
}

// Inspector follows redirect chains with HEAD requests.
type Inspector struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	maxHops int
}

// NewInspector creates an inspector. perSecond paces outbound requests
// across all inspections; zero or less disables pacing.
func NewInspector(perSecond float64, burst int) *Inspector {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Inspector{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: rate.NewLimiter(limit, burst),
		timeout: DefaultChainTimeout,
		maxHops: DefaultMaxHops,
	}
}

// Inspect follows target until a non-redirect response. The whole chain
// shares one timeout. Any failure, including timeout, returns a
// single-entry chain with Err set.
func (in *Inspector) Inspect(ctx context.Context, target string) Chain {
	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	hops, err := in.follow(ctx, target)
	if err != nil {
		return Chain{Hops: []Hop{{URL: target}}, Err: err}
	}
	return Chain{Hops: hops}
}

func (in *Inspector) follow(ctx context.Context, target string) ([]Hop, error) {
	current, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}

	var hops []Hop
	for len(hops) < in.maxHops {
		if err := in.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		hop, next, err := in.head(ctx, current)
		if err != nil {
			return nil, err
		}
		hops = append(hops, hop)
		if next == nil {
			return hops, nil
		}
		current = next
	}
	return nil, ErrTooManyHops
}

// head issues one HEAD request. next is nil unless the response is a
// redirect with a usable Location.
func (in *Inspector) head(ctx context.Context, u *url.URL) (Hop, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return Hop{}, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Linkpeek-HealthCheck/1.0")

	start := time.Now()
	resp, err := in.client.Do(req)
	if err != nil {
		return Hop{}, nil, fmt.Errorf("head %s: %w", u.Host, err)
	}
	resp.Body.Close()

	hop := Hop{URL: u.String(), Status: resp.StatusCode, Duration: time.Since(start)}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return hop, nil, nil
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return hop, nil, nil
	}
	next, err := u.Parse(loc)
	if err != nil {
		return Hop{}, nil, fmt.Errorf("parse location: %w", err)
	}
	return hop, next, nil
}
