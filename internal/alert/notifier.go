package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linkpeek/linkpeek/internal/metrics"
	"github.com/linkpeek/linkpeek/internal/model"
)

// Event types.
const (
	EventIncidentOpened   = "incident.opened"
	EventIncidentResolved = "incident.resolved"
)

// DefaultQueueSize bounds pending alerts; extra alerts are dropped.
const DefaultQueueSize = 256

// ErrQueueFull is logged when an alert is dropped.
var ErrQueueFull = errors.New("alert queue full")

// Payload is the JSON body of an alert.
type Payload struct {
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Incident  *model.Incident `json:"incident"`
}

type delivery struct {
	id      string
	payload []byte
	event   string
}

// Notifier delivers incident alerts to one webhook endpoint in the
// background. Delivery is best-effort.
type Notifier struct {
	url     string
	secret  string
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
	delay   func(attempt int) time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan delivery
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNotifier creates a notifier and starts its delivery goroutine.
// Call Close to drain.
func NewNotifier(targetURL, secret string, client *http.Client, logger *slog.Logger, recorder metrics.Recorder) *Notifier {
	if client == nil {
		client = NewHTTPClient()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	n := &Notifier{
		url:     targetURL,
		secret:  secret,
		client:  client,
		logger:  logger.With("component", "alert.notifier", "host", ExtractHost(targetURL)),
		metrics: recorder,
		now:     time.Now,
		delay:   NextRetryDelay,
		queue:   make(chan delivery, DefaultQueueSize),
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.wg.Add(1)
	go n.run()
	return n
}

// IncidentOpened queues an incident.opened alert.
func (n *Notifier) IncidentOpened(_ context.Context, inc *model.Incident) {
	n.enqueue(EventIncidentOpened, inc)
}

// IncidentResolved queues an incident.resolved alert.
func (n *Notifier) IncidentResolved(_ context.Context, inc *model.Incident) {
	n.enqueue(EventIncidentResolved, inc)
}

func (n *Notifier) enqueue(event string, inc *model.Incident) {
	id := ulid.Make().String()
	body, err := json.Marshal(Payload{
		EventType: event,
		EventID:   id,
		Timestamp: n.now().UTC(),
		Incident:  inc,
	})
	if err != nil {
		n.logger.Error("marshal alert", "incident_id", inc.ID, "error", err)
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.logger.Warn("alert dropped after close", "incident_id", inc.ID, "event", event)
		return
	}
	select {
	case n.queue <- delivery{id: id, payload: body, event: event}:
	default:
		n.metrics.IncAlertDelivery("dropped")
		n.logger.Warn("alert dropped", "incident_id", inc.ID, "event", event, "error", ErrQueueFull)
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()

	for d := range n.queue {
		if n.ctx.Err() != nil {
			n.metrics.IncAlertDelivery("failed")
			n.logger.Warn("alert abandoned on close", "delivery_id", d.id, "event", d.event)
			continue
		}
		if err := n.deliverWithRetry(n.ctx, d); err != nil {
			n.metrics.IncAlertDelivery("failed")
			n.logger.Error("alert delivery failed",
				"delivery_id", d.id,
				"event", d.event,
				"error", err,
			)
			continue
		}
		n.metrics.IncAlertDelivery("success")
	}
}

// Close stops accepting alerts and waits for queued ones until ctx expires.
// On timeout the in-flight request is cancelled and queued alerts are
// abandoned without an attempt.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	alreadyClosed := n.closed
	if !alreadyClosed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		return ctx.Err()
	}
}

func (n *Notifier) deliverWithRetry(ctx context.Context, d delivery) error {
	var lastErr error
	for attempt := 0; attempt < DefaultMaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(n.delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("abandoned after %d attempts: %w", attempt, lastErr)
			case <-timer.C:
			}
		}

		lastErr = n.send(ctx, d)
		if lastErr == nil {
			return nil
		}
		n.logger.Warn("alert attempt failed", "delivery_id", d.id, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

func (n *Notifier) send(ctx context.Context, d delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(d.payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	ts := n.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Linkpeek-Alert/1.0")
	req.Header.Set(HeaderEvent, d.event)
	req.Header.Set(HeaderDeliveryID, d.id)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, GenerateSignature(n.secret, ts, d.payload))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
