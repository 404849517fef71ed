package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncClickEventPublished(string)           {}
func (n *NoopRecorder) IncClickEventProcessed(string)           {}
func (n *NoopRecorder) ObserveClickBatchSize(int)               {}
func (n *NoopRecorder) ObserveClickBatchDuration(time.Duration) {}
func (n *NoopRecorder) SetClickQueueDepth(int64)                {}
func (n *NoopRecorder) ObserveClickIngestLag(time.Duration)     {}
func (n *NoopRecorder) IncIncidentOpened(string)                {}
func (n *NoopRecorder) IncIncidentResolved(int)                 {}
func (n *NoopRecorder) ObserveDetectorRun(time.Duration, int)   {}
func (n *NoopRecorder) IncHealthCheck(string)                   {}
func (n *NoopRecorder) IncAlertDelivery(string)                 {}
