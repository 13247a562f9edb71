// Package metrics provides Prometheus metrics for the circlematch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBuckets are millisecond buckets sized for model round-trips.
var defaultLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Model and scoring
	modelCalls       *prometheus.CounterVec
	modelLatency     prometheus.Histogram
	pairsScored      *prometheus.CounterVec
	formatDegraded   prometheus.Counter
	fanoutRuns       *prometheus.CounterVec
	fanoutDuration   prometheus.Histogram
	fanoutInflight   prometheus.Gauge
	sessionsCreated  prometheus.Counter
	recsPersisted    prometheus.Counter
	recsPersistError prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerBusy              prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec
	repositoryErrors       *prometheus.CounterVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals

func init() { //nolint:gochecknoinits
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "circlematch",
		subsystem:        "matching",
		histogramBuckets: defaultLatencyBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.modelCalls = m.counterVec("model_calls_total",
		"Scoring model calls by outcome", "outcome")
	m.modelLatency = m.histogram("model_latency_milliseconds",
		"Scoring model round-trip latency in milliseconds")
	m.pairsScored = m.counterVec("pairs_scored_total",
		"Event/user pairs resolved by the fan-out, by outcome", "outcome")
	m.formatDegraded = m.counter("format_degraded_total",
		"Events whose start time could not be parsed and was passed through raw")
	m.fanoutRuns = m.counterVec("fanout_runs_total",
		"Fan-out runs by outcome", "outcome")
	m.fanoutDuration = m.histogram("fanout_duration_milliseconds",
		"Wall time of a whole fan-out run in milliseconds")
	m.fanoutInflight = m.gauge("fanout_inflight_pairs",
		"Pairs currently being scored")
	m.sessionsCreated = m.counter("sessions_created_total",
		"Matching sessions created")
	m.recsPersisted = m.counter("recommendations_persisted_total",
		"Aggregated recommendations written to the store")
	m.recsPersistError = m.counter("recommendations_persist_errors_total",
		"Aggregated recommendations that failed to persist")

	m.queueSize = m.gauge("queue_size", "Current number of queued scoring jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued scoring jobs")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Scoring jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Scoring jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Scoring jobs rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Number of scoring workers")
	m.workerBusy = m.gauge("worker_busy", "Number of workers currently scoring a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one job in milliseconds")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds",
		"Store operation latency in milliseconds", "operation")
	m.repositoryErrors = m.counterVec("repository_errors_total",
		"Store operation failures", "operation")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds")
}

// HTTP.

// RecordHTTPRequest increments the request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Model and scoring.

// RecordModelCall counts a model call and observes its latency.
func RecordModelCall(outcome string, latencyMs float64) {
	globalManager.modelCalls.WithLabelValues(outcome).Inc()
	globalManager.modelLatency.Observe(latencyMs)
}

// RecordPairScored counts a resolved pair; outcome is "success" or "failure".
func RecordPairScored(outcome string) {
	globalManager.pairsScored.WithLabelValues(outcome).Inc()
}

// RecordFormatDegraded counts a start time passed through unparsed.
func RecordFormatDegraded() {
	globalManager.formatDegraded.Inc()
}

// RecordFanoutRun counts a finished run and observes its duration.
func RecordFanoutRun(outcome string, durationMs float64) {
	globalManager.fanoutRuns.WithLabelValues(outcome).Inc()
	globalManager.fanoutDuration.Observe(durationMs)
}

// AddFanoutInflight adjusts the in-flight pair gauge by delta.
func AddFanoutInflight(delta int) {
	globalManager.fanoutInflight.Add(float64(delta))
}

// RecordSessionCreated counts a matching session.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordRecommendationPersisted counts a persisted recommendation.
func RecordRecommendationPersisted() {
	globalManager.recsPersisted.Inc()
}

// RecordRecommendationPersistError counts a recommendation that was not stored.
func RecordRecommendationPersistError() {
	globalManager.recsPersistError.Inc()
}

// Queue.

// UpdateQueueSize sets the queue length gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Workers.

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerBusy adjusts the busy worker gauge by delta.
func AddWorkerBusy(delta int) {
	globalManager.workerBusy.Add(float64(delta))
}

// RecordWorkerProcessingLatency observes per-job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// Repository.

// RecordRepositoryQuery observes the latency of a store operation.
func RecordRepositoryQuery(operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRepositoryError counts a failed store operation.
func RecordRepositoryError(operation string) {
	globalManager.repositoryErrors.WithLabelValues(operation).Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap usage gauge in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
