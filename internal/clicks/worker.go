package clicks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/linkpeek/linkpeek/internal/metrics"
	"github.com/linkpeek/linkpeek/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "outcome_ingesters"

	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 500

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the max retries for batch processing.
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	deadLetterMaxLen = 10000
)

// Repository persists redirect records. BulkInsert returns the records it
// refused because their link does not exist.
type Repository interface {
	BulkInsert(ctx context.Context, records []*model.RedirectRecord) ([]*model.RedirectRecord, error)
}

// Worker ingests redirect outcomes from the Redis stream.
type Worker struct {
	redis           *redis.Client
	repo            Repository
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	retryBase       time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time
	deadLetter      func(ctx context.Context, msg redis.XMessage, reason, detail string)

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a new ingestion worker.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	w := &Worker{
		redis:           client,
		repo:            repo,
		logger:          logger.With("component", "clicks.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		retryBase:       time.Second,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
	w.deadLetter = w.deadLetterMessage
	return w
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("ingestion worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()

		if draining {
			w.logger.Info("ingestion worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("ingestion worker stopping")
			return nil
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				sleepCtx(ctx, time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, completing any in-flight batch.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("ingestion worker shutdown initiated")
	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		w.logger.Info("ingestion worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("ingestion worker shutdown timed out")
		return ctx.Err()
	}
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetClaimIdle overrides the default pending idle threshold.
func (w *Worker) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		w.claimIdle = idle
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce reads and processes a single batch.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	claimed, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}

	messages := claimed
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	records, messageIDs := w.parseMessages(ctx, messages)
	if len(records) == 0 {
		// Everything was dead-lettered; ack so the group moves on.
		return w.ackMessages(ctx, messageIDs)
	}

	if err := w.storeBatch(ctx, messages, records); err != nil {
		// Leave unacked so the batch is reclaimed later.
		return err
	}

	return w.ackMessages(ctx, messageIDs)
}

// storeBatch inserts records and dead-letters the ones refused for an
// unknown link, so one bad link id never holds back the rest of the batch.
func (w *Worker) storeBatch(ctx context.Context, messages []redis.XMessage, records []*model.RedirectRecord) error {
	rejected, err := w.processBatchWithRetry(ctx, records)
	if err != nil {
		w.logger.Error("batch processing failed after retries",
			"batch_size", len(records),
			"error", err,
		)
		return err
	}
	if len(rejected) == 0 {
		return nil
	}

	byID := make(map[string]redis.XMessage, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
	}
	for _, rec := range rejected {
		msg, ok := byID[rec.EventID]
		if !ok {
			msg = redis.XMessage{ID: rec.EventID}
		}
		w.deadLetter(ctx, msg, "unknown_link", "link "+rec.LinkID+" does not exist")
	}
	return nil
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}

	w.lastClaim = time.Now()
	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			w.metrics.SetClickQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()

	if errors.Is(err, redis.Nil) || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// parseMessages converts stream messages to redirect records.
// Malformed or invalid messages are moved to the dead-letter stream.
func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*model.RedirectRecord, []string) {
	records := make([]*model.RedirectRecord, 0, len(messages))
	messageIDs := make([]string, 0, len(messages))

	for _, msg := range messages {
		messageIDs = append(messageIDs, msg.ID)

		rec, reason, detail := decodeMessage(msg)
		if rec == nil {
			w.deadLetter(ctx, msg, reason, detail)
			continue
		}
		records = append(records, rec)
	}
	return records, messageIDs
}

// decodeMessage maps one stream entry to a record. On failure it returns a
// nil record with the dead-letter reason and detail.
func decodeMessage(msg redis.XMessage) (*model.RedirectRecord, string, string) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, "invalid_format", "payload field missing or not a string"
	}

	var payload OutcomePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, "unmarshal_error", err.Error()
	}
	if err := ValidatePayload(payload); err != nil {
		return nil, "validation_error", err.Error()
	}

	ts := time.UnixMilli(payload.ClickedAt).UTC()
	id, err := ulid.New(ulid.Timestamp(ts), ulid.DefaultEntropy())
	if err != nil {
		id = ulid.Make()
	}
	rec := &model.RedirectRecord{
		ID:                   id.String(),
		EventID:              msg.ID,
		LinkID:               payload.LinkID,
		TS:                   ts,
		Success:              payload.Success,
		InAppBrowserDetected: payload.InApp,
		LoadTimeMs:           payload.LoadTimeMs,
		Platform:             payload.Platform,
		Browser:              payload.Browser,
		Device:               payload.Device,
		Country:              payload.Country,
		UserAgent:            payload.UserAgent,
		Referrer:             payload.Referrer,
		VisitorHash:          payload.VisitorHash,
	}
	if payload.Recovery != "" {
		s := payload.Recovery
		rec.RecoveryStrategyUsed = &s
	}
	return rec, "", ""
}

func (w *Worker) deadLetterMessage(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	_, err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"original_stream":  StreamKey,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		w.logger.Error("failed to write to dead-letter queue",
			"message_id", msg.ID,
			"error", err,
		)
	}

	w.metrics.IncClickEventProcessed("dead_lettered")
}

// processBatchWithRetry retries with exponential backoff.
func (w *Worker) processBatchWithRetry(ctx context.Context, records []*model.RedirectRecord) ([]*model.RedirectRecord, error) {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		rejected, err := w.processBatch(ctx, records)
		if err == nil {
			return rejected, nil
		}
		lastErr = err

		backoff := w.retryBase * time.Duration(1<<attempt)
		w.logger.Warn("batch processing failed, retrying",
			"attempt", attempt,
			"backoff_seconds", backoff.Seconds(),
			"error", err,
		)
		if !sleepCtx(ctx, backoff) {
			return nil, ctx.Err()
		}
	}

	for range records {
		w.metrics.IncClickEventProcessed("failed")
	}
	return nil, lastErr
}

func (w *Worker) processBatch(ctx context.Context, records []*model.RedirectRecord) ([]*model.RedirectRecord, error) {
	start := time.Now()

	rejected, err := w.repo.BulkInsert(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("bulk insert: %w", err)
	}

	w.logger.Info("batch processed",
		"records_count", len(records),
		"rejected_count", len(rejected),
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)

	refused := make(map[string]bool, len(rejected))
	for _, rec := range rejected {
		refused[rec.EventID] = true
	}
	w.metrics.ObserveClickBatchSize(len(records))
	w.metrics.ObserveClickBatchDuration(time.Since(start))
	for _, rec := range records {
		if refused[rec.EventID] {
			continue
		}
		w.metrics.IncClickEventProcessed("success")
		w.metrics.ObserveClickIngestLag(time.Since(rec.TS))
	}
	return rejected, nil
}

func (w *Worker) ackMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageIDs...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
