package recovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linkpeek/linkpeek/internal/handler/dto"
	"github.com/linkpeek/linkpeek/internal/model"
)

// AttemptsPath is the recovery logging endpoint.
const AttemptsPath = "/api/v1/recovery-attempts"

// HTTPLogger posts attempts to the recovery logging endpoint.
type HTTPLogger struct {
	endpoint string
	client   *http.Client
}

// NewHTTPLogger creates a logger posting to baseURL. A nil client gets a
// 2 second timeout.
func NewHTTPLogger(baseURL string, client *http.Client) *HTTPLogger {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return &HTTPLogger{
		endpoint: strings.TrimSuffix(baseURL, "/") + AttemptsPath,
		client:   client,
	}
}

// LogAttempt implements AttemptLogger.
func (l *HTTPLogger) LogAttempt(ctx context.Context, attempt model.RecoveryAttempt) error {
	body, err := json.Marshal(dto.ToRecoveryAttemptRequest(attempt))
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("post attempt: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post attempt: unexpected status %d", resp.StatusCode)
	}
	return nil
}
