// Package clicks captures redirect outcomes and ingests them as redirect
// records through a Redis stream.
package clicks

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/linkpeek/linkpeek/internal/metrics"
)

const (
	// StreamKey is the Redis stream for redirect outcomes.
	StreamKey = "linkpeek:stream:outcomes"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "linkpeek:stream:outcomes:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond

	maxMetaLength = 500
)

// OutcomePayload is the compact event format for the Redis stream.
type OutcomePayload struct {
	LinkID      string `json:"lid"`
	Success     bool   `json:"ok"`
	InApp       bool   `json:"ia,omitempty"`
	LoadTimeMs  *int   `json:"lt,omitempty"`
	Platform    string `json:"p"`
	Browser     string `json:"b"`
	Device      string `json:"d,omitempty"`
	Country     string `json:"cc,omitempty"`
	UserAgent   string `json:"ua,omitempty"`
	Referrer    string `json:"r,omitempty"`
	VisitorHash string `json:"vh,omitempty"`
	Recovery    string `json:"rs,omitempty"`
	ClickedAt   int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues redirect outcomes to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new outcome publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "clicks.publisher"),
		metrics: recorder,
	}
}

// Publish adds an outcome to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event OutcomePayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event OutcomePayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish redirect outcome",
				"link_id", event.LinkID,
				"error", err,
			)
			p.metrics.IncClickEventPublished("dropped")
			return
		}

		p.logger.Debug("redirect outcome published",
			"link_id", event.LinkID,
			"stream_id", streamID,
		)
		p.metrics.IncClickEventPublished("success")
	}()
}

// VisitorHash creates a privacy-safe visitor identifier: a keyed BLAKE2b
// digest of IP and User-Agent, keyed by the UTC day, truncated to 16 hex
// chars. The key rotates at midnight UTC.
func VisitorHash(ip, userAgent string, clickedAt time.Time) string {
	key := []byte("linkpeek:" + clickedAt.UTC().Format("2006-01-02"))
	h, err := blake2b.New256(key)
	if err != nil {
		return ""
	}
	h.Write([]byte(ip))
	h.Write([]byte{0})
	h.Write([]byte(userAgent))
	return hex.EncodeToString(h.Sum(nil))[:visitorHashLength]
}

// SanitizeReferrer strips query and fragment and truncates to 500 chars.
func SanitizeReferrer(ref string) string {
	if ref == "" {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return truncate(parsed.String(), maxMetaLength)
}

// TruncateUserAgent truncates user agent to max 500 chars.
func TruncateUserAgent(ua string) string {
	return truncate(ua, maxMetaLength)
}

// NormalizeCountry returns an upper-case ISO alpha-2 code, or "" when the
// value is not two letters.
func NormalizeCountry(code string) string {
	code = strings.TrimSpace(code)
	if len(code) != 2 {
		return ""
	}
	for i := 0; i < 2; i++ {
		ch := code[i] | 0x20
		if ch < 'a' || ch > 'z' {
			return ""
		}
	}
	return strings.ToUpper(code)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
