// Package metrics provides Prometheus metrics for the dropwatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the dropwatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Scoring
	predictions       *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	scoringErrors     prometheus.Counter
	modelFeatures     prometheus.Gauge
	modelAccuracy     prometheus.Gauge

	// Intervention log
	interventionsLogged prometheus.Counter
	outcomeUpdates      *prometheus.CounterVec
	storeErrors         *prometheus.CounterVec
	storeLatency        *prometheus.HistogramVec
	storeRecords        prometheus.Gauge
	storeCompleted      prometheus.Gauge
	storeRecordsByRisk  *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dropwatch",
		subsystem:        "api",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(
		m.counterOpts("predictions_total", "Total number of risk predictions by risk level"),
		[]string{"risk_level"},
	)
	m.predictionLatency = auto.NewHistogram(
		m.histogramOpts("prediction_latency_milliseconds", "Classifier scoring latency in milliseconds"),
	)
	m.scoringErrors = auto.NewCounter(
		m.counterOpts("scoring_errors_total", "Total number of classifier failures"),
	)
	m.modelFeatures = auto.NewGauge(
		m.gaugeOpts("model_features", "Number of input features expected by the loaded model"),
	)
	m.modelAccuracy = auto.NewGauge(
		m.gaugeOpts("model_test_accuracy_ratio", "Hold-out accuracy recorded in the loaded model artifact"),
	)

	m.interventionsLogged = auto.NewCounter(
		m.counterOpts("interventions_logged_total", "Total number of intervention records appended"),
	)
	m.outcomeUpdates = auto.NewCounterVec(
		m.counterOpts("outcome_updates_total", "Outcome update attempts by result"),
		[]string{"result"},
	)
	m.storeErrors = auto.NewCounterVec(
		m.counterOpts("store_errors_total", "Intervention store failures by backend and operation"),
		[]string{"backend", "op"},
	)
	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_operation_latency_milliseconds", "Intervention store operation latency in milliseconds"),
		[]string{"backend", "op"},
	)
	m.storeRecords = auto.NewGauge(
		m.gaugeOpts("store_records", "Intervention records currently in the store"),
	)
	m.storeCompleted = auto.NewGauge(
		m.gaugeOpts("store_completed_outcomes", "Intervention records with a recorded outcome"),
	)
	m.storeRecordsByRisk = auto.NewGaugeVec(
		m.gaugeOpts("store_records_by_risk_level", "Intervention records per logged risk level"),
		[]string{"risk_level"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutine_count", "Number of goroutines"),
	)
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds"),
	)
}

// RecordPrediction counts a prediction and observes its latency.
func RecordPrediction(riskLevel string, latencyMs float64) {
	globalManager.predictions.WithLabelValues(riskLevel).Inc()
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// UpdateModelInfo publishes static facts about the loaded model.
func UpdateModelInfo(features int, accuracy float64) {
	globalManager.modelFeatures.Set(float64(features))
	globalManager.modelAccuracy.Set(accuracy)
}

// RecordInterventionLogged increments the appended interventions counter.
func RecordInterventionLogged() {
	globalManager.interventionsLogged.Inc()
}

// RecordOutcomeUpdate counts an outcome update attempt; result is one of
// updated, not_found, store_missing or error.
func RecordOutcomeUpdate(result string) {
	globalManager.outcomeUpdates.WithLabelValues(result).Inc()
}

// RecordStoreOperation observes a store call and counts it as an error when failed.
func RecordStoreOperation(backend, op string, latencyMs float64, failed bool) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
	if failed {
		globalManager.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// UpdateStoreSnapshot publishes the size of the intervention log.
func UpdateStoreSnapshot(records, completed int, byRisk map[string]int) {
	globalManager.storeRecords.Set(float64(records))
	globalManager.storeCompleted.Set(float64(completed))
	globalManager.storeRecordsByRisk.Reset()
	for level, n := range byRisk {
		globalManager.storeRecordsByRisk.WithLabelValues(level).Set(float64(n))
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
