// Package metrics provides lightweight hooks for instrumentation of the
// background pipelines. The redirect path itself is observed through the
// event log only.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// Click ingestion pipeline
	IncClickEventPublished(status string) // "success" or "dropped"
	IncClickEventProcessed(status string) // "success", "failed", "skipped"
	ObserveClickBatchSize(size int)
	ObserveClickBatchDuration(duration time.Duration)
	SetClickQueueDepth(depth int64)
	ObserveClickIngestLag(lag time.Duration)

	// Incident detector
	IncIncidentOpened(severity string)
	IncIncidentResolved(count int)
	ObserveDetectorRun(duration time.Duration, errors int)

	// Link health checker
	IncHealthCheck(status string) // health status, or "failed"

	// Alert webhooks
	IncAlertDelivery(status string) // "success" or "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
