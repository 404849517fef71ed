package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ClickEventsPublished map[string]uint64
	ClickEventsProcessed map[string]uint64
	ClickBatchCount      uint64
	ClickQueueDepth      int64
	IncidentsOpened      map[string]uint64
	IncidentsResolved    uint64
	DetectorRuns         uint64
	DetectorErrors       uint64
	HealthChecks         map[string]uint64
	AlertDeliveries      map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		ClickEventsPublished: map[string]uint64{},
		ClickEventsProcessed: map[string]uint64{},
		IncidentsOpened:      map[string]uint64{},
		HealthChecks:         map[string]uint64{},
		AlertDeliveries:      map[string]uint64{},
	}}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snap
	out.ClickEventsPublished = copyCounts(m.snap.ClickEventsPublished)
	out.ClickEventsProcessed = copyCounts(m.snap.ClickEventsProcessed)
	out.IncidentsOpened = copyCounts(m.snap.IncidentsOpened)
	out.HealthChecks = copyCounts(m.snap.HealthChecks)
	out.AlertDeliveries = copyCounts(m.snap.AlertDeliveries)
	return out
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncClickEventPublished(status string) {
	m.inc(m.snap.ClickEventsPublished, status)
}

func (m *InMemoryRecorder) IncClickEventProcessed(status string) {
	m.inc(m.snap.ClickEventsProcessed, status)
}

func (m *InMemoryRecorder) ObserveClickBatchSize(int) {
	m.mu.Lock()
	m.snap.ClickBatchCount++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveClickBatchDuration(time.Duration) {}

func (m *InMemoryRecorder) SetClickQueueDepth(depth int64) {
	m.mu.Lock()
	m.snap.ClickQueueDepth = depth
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveClickIngestLag(time.Duration) {}

func (m *InMemoryRecorder) IncIncidentOpened(severity string) {
	m.inc(m.snap.IncidentsOpened, severity)
}

func (m *InMemoryRecorder) IncIncidentResolved(count int) {
	m.mu.Lock()
	m.snap.IncidentsResolved += uint64(count)
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveDetectorRun(_ time.Duration, errors int) {
	m.mu.Lock()
	m.snap.DetectorRuns++
	m.snap.DetectorErrors += uint64(errors)
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncHealthCheck(status string) {
	m.inc(m.snap.HealthChecks, status)
}

func (m *InMemoryRecorder) IncAlertDelivery(status string) {
	m.inc(m.snap.AlertDeliveries, status)
}
