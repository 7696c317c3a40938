// Package metrics provides Prometheus metrics for the matchday pipeline.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the pipeline.
type Manager struct {
	namespace       string
	subsystem       string
	durationBuckets []float64
	enabled         bool
	constLabels     map[string]string
	registry        prometheus.Registerer

	// Jobs
	jobsProcessed *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsEnqueued  *prometheus.CounterVec

	// Queues
	queueDepth  *prometheus.GaugeVec
	queuePaused *prometheus.GaugeVec

	// Breakers
	breakerState      *prometheus.GaugeVec
	breakerRejections *prometheus.CounterVec
	queueBreakerTrips *prometheus.CounterVec

	// Dead letters
	deadLetters *prometheus.CounterVec

	// Forecasts and scoring
	forecastsStored    *prometheus.CounterVec
	forecasterFailures *prometheus.CounterVec
	forecasterDisabled *prometheus.CounterVec
	fixturesSettled    prometheus.Counter
	forecastPoints     prometheus.Histogram

	// Reconciler
	reconcilerRuns *prometheus.CounterVec
	reconcilerGaps prometheus.Gauge
	coverageGaps   *prometheus.GaugeVec

	// Deploy tasks
	deployTasks *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "matchday",
		subsystem:       "pipeline",
		durationBuckets: []float64{5, 25, 100, 250, 1000, 2500, 10_000, 30_000, 120_000},
		enabled:         true,
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.jobsProcessed = m.counterVec("jobs_processed_total", "Jobs processed by queue and outcome", "queue", "outcome")
	m.jobsEnqueued = m.counterVec("jobs_enqueued_total", "Enqueue attempts by queue and result", "queue", "result")
	m.jobDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "job_duration_milliseconds",
		Help:        "Job handler duration in milliseconds",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	}, []string{"queue"})

	m.queueDepth = m.gaugeVec("queue_jobs", "Jobs per queue and state", "queue", "state")
	m.queuePaused = m.gaugeVec("queue_paused", "1 when the queue is paused", "queue")

	m.breakerState = m.gaugeVec("breaker_state", "Service breaker state (0 closed, 1 half-open, 2 open)", "dependency")
	m.breakerRejections = m.counterVec("breaker_rejections_total", "Calls refused by an open service breaker", "dependency")
	m.queueBreakerTrips = m.counterVec("queue_breaker_trips_total", "Queue pauses caused by sustained rate limiting", "queue")

	m.deadLetters = m.counterVec("dead_letters_total", "Jobs parked in the dead letter ledger", "queue", "kind")

	m.forecastsStored = m.counterVec("forecasts_stored_total", "Forecasts upserted per forecaster", "forecaster")
	m.forecasterFailures = m.counterVec("forecaster_failures_total", "Failed forecaster calls", "forecaster")
	m.forecasterDisabled = m.counterVec("forecaster_auto_disabled_total", "Forecasters auto-disabled after repeated failures", "forecaster")
	m.fixturesSettled = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fixtures_settled_total",
		Help:        "Fixtures scored by the settlement stage",
		ConstLabels: m.constLabels,
	})
	m.forecastPoints = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "forecast_points",
		Help:        "Distribution of total points per scored forecast",
		Buckets:     []float64{0, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		ConstLabels: m.constLabels,
	})

	m.reconcilerRuns = m.counterVec("reconciler_runs_total", "Reconciler runs by result", "result")
	m.reconcilerGaps = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "reconciler_gaps",
		Help:        "Fixtures with an incomplete forecast population found by the last run",
		ConstLabels: m.constLabels,
	})
	m.coverageGaps = m.gaugeVec("coverage_gaps", "Upcoming fixtures with missing pipeline output by severity", "severity")

	m.deployTasks = m.counterVec("deploy_tasks_total", "Post-deploy task executions by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordJobProcessed counts a finished job execution and its duration.
func RecordJobProcessed(queue, outcome string, durationMs float64) {
	if !on() {
		return
	}
	globalManager.jobsProcessed.WithLabelValues(queue, outcome).Inc()
	globalManager.jobDuration.WithLabelValues(queue).Observe(durationMs)
}

// RecordJobEnqueued counts an enqueue attempt. Result is "added" or "duplicate".
func RecordJobEnqueued(queue, result string) {
	if on() {
		globalManager.jobsEnqueued.WithLabelValues(queue, result).Inc()
	}
}

// UpdateQueueDepth sets the number of jobs in a given state.
func UpdateQueueDepth(queue, state string, n int64) {
	if on() {
		globalManager.queueDepth.WithLabelValues(queue, state).Set(float64(n))
	}
}

// UpdateQueuePaused flags a queue as paused or running.
func UpdateQueuePaused(queue string, paused bool) {
	if !on() {
		return
	}
	v := 0.0
	if paused {
		v = 1
	}
	globalManager.queuePaused.WithLabelValues(queue).Set(v)
}

// UpdateBreakerState publishes the numeric state of a service breaker.
func UpdateBreakerState(dependency string, state int) {
	if on() {
		globalManager.breakerState.WithLabelValues(dependency).Set(float64(state))
	}
}

// RecordBreakerRejection counts a call refused by an open breaker.
func RecordBreakerRejection(dependency string) {
	if on() {
		globalManager.breakerRejections.WithLabelValues(dependency).Inc()
	}
}

// RecordQueueBreakerTrip counts a queue pause.
func RecordQueueBreakerTrip(queue string) {
	if on() {
		globalManager.queueBreakerTrips.WithLabelValues(queue).Inc()
	}
}

// RecordDeadLetter counts a dead-lettered job.
func RecordDeadLetter(queue string, permanent bool) {
	if on() {
		globalManager.deadLetters.WithLabelValues(queue, kindLabel(permanent)).Inc()
	}
}

func kindLabel(permanent bool) string {
	if permanent {
		return "permanent"
	}
	return "exhausted"
}

// RecordForecastStored counts a stored forecast.
func RecordForecastStored(forecaster string) {
	if on() {
		globalManager.forecastsStored.WithLabelValues(forecaster).Inc()
	}
}

// RecordForecasterFailure counts a failed forecaster call.
func RecordForecasterFailure(forecaster string) {
	if on() {
		globalManager.forecasterFailures.WithLabelValues(forecaster).Inc()
	}
}

// RecordForecasterDisabled counts an auto-disable.
func RecordForecasterDisabled(forecaster string) {
	if on() {
		globalManager.forecasterDisabled.WithLabelValues(forecaster).Inc()
	}
}

// RecordFixtureSettled counts a settlement and the points it awarded.
func RecordFixtureSettled(points []int) {
	if !on() {
		return
	}
	globalManager.fixturesSettled.Inc()
	for _, p := range points {
		globalManager.forecastPoints.Observe(float64(p))
	}
}

// RecordReconcilerRun counts a reconciler run and publishes its gap count.
func RecordReconcilerRun(result string, gaps int) {
	if !on() {
		return
	}
	globalManager.reconcilerRuns.WithLabelValues(result).Inc()
	globalManager.reconcilerGaps.Set(float64(gaps))
}

// UpdateCoverageGaps publishes the coverage report size for a severity.
func UpdateCoverageGaps(severity string, n int) {
	if on() {
		globalManager.coverageGaps.WithLabelValues(severity).Set(float64(n))
	}
}

// RecordDeployTask counts a deploy task run. Result is "completed", "skipped" or "failed".
func RecordDeployTask(result string) {
	if on() {
		globalManager.deployTasks.WithLabelValues(result).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method string, statusCode int, durationMs float64) {
	if !on() {
		return
	}
	code := strconv.Itoa(statusCode)
	globalManager.httpRequests.WithLabelValues(endpoint, method, code).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, code).Observe(durationMs)
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
