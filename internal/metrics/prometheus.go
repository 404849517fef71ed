package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkpeek"

// PrometheusRecorder exports metrics on its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	clickPublished     *prometheus.CounterVec
	clickProcessed     *prometheus.CounterVec
	clickBatchSize     prometheus.Histogram
	clickBatchDuration prometheus.Histogram
	clickQueueDepth    prometheus.Gauge
	clickIngestLag     prometheus.Histogram

	incidentsOpened   *prometheus.CounterVec
	incidentsResolved prometheus.Counter
	detectorDuration  prometheus.Histogram
	detectorErrors    prometheus.Counter

	healthChecks    *prometheus.CounterVec
	alertDeliveries *prometheus.CounterVec
}

// NewPrometheus creates a recorder with process and Go collectors registered.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &PrometheusRecorder{
		registry: reg,
		clickPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "click_events_published_total",
			Help: "Click events offered to the ingestion stream.",
		}, []string{"status"}),
		clickProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "click_events_processed_total",
			Help: "Click events handled by the ingestion worker.",
		}, []string{"status"}),
		clickBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "click_batch_size",
			Help:    "Records per ingestion batch.",
			Buckets: []float64{1, 10, 25, 50, 100, 250, 500},
		}),
		clickBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "click_batch_duration_seconds",
			Help:    "Time to persist one ingestion batch.",
			Buckets: prometheus.DefBuckets,
		}),
		clickQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "click_queue_depth",
			Help: "Pending entries in the ingestion consumer group.",
		}),
		clickIngestLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "click_ingest_lag_seconds",
			Help:    "Delay between a click and its persistence.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		incidentsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "incidents_opened_total",
			Help: "Incidents opened by severity.",
		}, []string{"severity"}),
		incidentsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "incidents_resolved_total",
			Help: "Incidents auto-resolved.",
		}),
		detectorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "detector_run_duration_seconds",
			Help:    "Duration of incident detector runs.",
			Buckets: prometheus.DefBuckets,
		}),
		detectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "detector_errors_total",
			Help: "Per-tuple errors skipped by the incident detector.",
		}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "health_checks_total",
			Help: "Link health checks by resulting status.",
		}, []string{"status"}),
		alertDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_deliveries_total",
			Help: "Incident alert webhook deliveries.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		p.clickPublished, p.clickProcessed, p.clickBatchSize, p.clickBatchDuration,
		p.clickQueueDepth, p.clickIngestLag, p.incidentsOpened, p.incidentsResolved,
		p.detectorDuration, p.detectorErrors, p.healthChecks, p.alertDeliveries,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncClickEventPublished(status string) {
	p.clickPublished.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncClickEventProcessed(status string) {
	p.clickProcessed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveClickBatchSize(size int) {
	p.clickBatchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) ObserveClickBatchDuration(d time.Duration) {
	p.clickBatchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetClickQueueDepth(depth int64) {
	p.clickQueueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) ObserveClickIngestLag(lag time.Duration) {
	p.clickIngestLag.Observe(lag.Seconds())
}

func (p *PrometheusRecorder) IncIncidentOpened(severity string) {
	p.incidentsOpened.WithLabelValues(severity).Inc()
}

func (p *PrometheusRecorder) IncIncidentResolved(count int) {
	p.incidentsResolved.Add(float64(count))
}

func (p *PrometheusRecorder) ObserveDetectorRun(d time.Duration, errors int) {
	p.detectorDuration.Observe(d.Seconds())
	p.detectorErrors.Add(float64(errors))
}

func (p *PrometheusRecorder) IncHealthCheck(status string) {
	p.healthChecks.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncAlertDelivery(status string) {
	p.alertDeliveries.WithLabelValues(status).Inc()
}
