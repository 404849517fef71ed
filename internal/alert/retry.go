package alert

import (
	"math/rand"
	"time"
)

// Retry delays between delivery attempts. Alerts are time-sensitive, so the
// schedule is short and in-process.
var retryDelays = [...]time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

const (
	// DefaultMaxAttempts is the number of delivery attempts per alert.
	DefaultMaxAttempts = len(retryDelays) + 1

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay returns the delay after the given 0-indexed failed attempt,
// with ±20% jitter.
func NextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryDelays) {
		attempt = len(retryDelays) - 1
	}

	base := retryDelays[attempt]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange
	return time.Duration(float64(base) + jitter)
}
