// Package metrics provides Prometheus metrics for the pairank ranking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// defaultLatencyBuckets are in milliseconds; every duration is recorded in ms.
var defaultLatencyBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 5000} //nolint:gochecknoglobals

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	enabled         bool
	refreshInterval time.Duration
	constLabels     prometheus.Labels
	registry        prometheus.Registerer

	// Session metrics
	votesRecorded    prometheus.Counter
	votesRemoved     prometheus.Counter
	votesEdited      prometheus.Counter
	drawsRecorded    prometheus.Counter
	votesDuplicate   prometheus.Counter
	voteLatency      prometheus.Histogram
	pairSelection    prometheus.Histogram
	ratingErrors     prometheus.Counter
	replays          *prometheus.CounterVec
	replayDuration   prometheus.Histogram
	replayDivergence prometheus.Counter

	reliability  prometheus.Gauge
	items        prometheus.Gauge
	ledgerLength prometheus.Gauge

	// Rankings index
	rankingQueryLatency prometheus.Histogram
	rankedItems         prometheus.Gauge

	// Persistence
	persistenceLatency *prometheus.HistogramVec
	persistenceErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// Calibration
	calibrationRuns     *prometheus.CounterVec
	calibrationDuration prometheus.Histogram
	workerActiveCount   prometheus.Gauge

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "pairank",
		subsystem:       "ranking",
		latencyBuckets:  defaultLatencyBuckets,
		enabled:         true,
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
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
		Buckets: m.latencyBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.latencyBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.votesRecorded = m.counter("votes_recorded_total", "Total number of votes recorded")
	m.votesRemoved = m.counter("votes_removed_total", "Total number of votes removed (undo, delete, item removal)")
	m.votesEdited = m.counter("votes_edited_total", "Total number of votes edited")
	m.drawsRecorded = m.counter("draws_recorded_total", "Total number of draws recorded")
	m.votesDuplicate = m.counter("votes_duplicate_total", "Total number of vote submissions rejected as duplicates")
	m.voteLatency = m.histogram("vote_latency_milliseconds", "Latency of a complete vote unit of work in milliseconds")
	m.pairSelection = m.histogram("pair_selection_latency_milliseconds", "Latency of next pair selection in milliseconds")
	m.ratingErrors = m.counter("rating_update_errors_total", "Total number of rejected rating updates")
	m.replays = m.counterVec("replays_total", "Total number of full ledger replays by cause", "cause")
	m.replayDuration = m.histogram("replay_duration_milliseconds", "Full ledger replay duration in milliseconds")
	m.replayDivergence = m.counter("replay_divergence_total", "Times stored ratings differed from a replay of the ledger")

	m.reliability = m.gauge("reliability_percent", "Current calculated reliability of the ranking")
	m.items = m.gauge("items", "Number of items in the session")
	m.ledgerLength = m.gauge("ledger_live_votes", "Number of live votes in the ledger")

	m.rankingQueryLatency = m.histogram("rankings_query_latency_milliseconds", "Rankings index query latency in milliseconds")
	m.rankedItems = m.gauge("ranked_items", "Number of items in the rankings index")

	m.persistenceLatency = m.histogramVec("persistence_latency_milliseconds", "Persistence operation latency in milliseconds", "op")
	m.persistenceErrors = m.counterVec("persistence_errors_total", "Total number of failed persistence operations", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.calibrationRuns = m.counterVec("calibration_runs_total", "Completed calibration simulations by model", "model")
	m.calibrationDuration = m.histogram("calibration_run_duration_milliseconds", "Calibration simulation duration in milliseconds")
	m.workerActiveCount = m.gauge("calibration_workers_active", "Calibration workers currently running a simulation")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "GC pause time in milliseconds")
}

// Enabled reports whether recording is on for the global manager.
func Enabled() bool { return globalManager.enabled }

// RefreshInterval returns how often gauge updaters should run.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// RecordVote records a successfully committed vote.
func RecordVote(draw bool, took time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.votesRecorded.Inc()
	if draw {
		globalManager.drawsRecorded.Inc()
	}
	globalManager.voteLatency.Observe(ms(took))
}

// RecordVotesRemoved adds n removed votes.
func RecordVotesRemoved(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.votesRemoved.Add(float64(n))
	}
}

// RecordVoteEdited increments the edited votes counter.
func RecordVoteEdited() {
	if globalManager.enabled {
		globalManager.votesEdited.Inc()
	}
}

// RecordVoteDuplicate increments the duplicate submissions counter.
func RecordVoteDuplicate() {
	if globalManager.enabled {
		globalManager.votesDuplicate.Inc()
	}
}

// RecordPairSelection records next pair selection latency.
func RecordPairSelection(took time.Duration) {
	if globalManager.enabled {
		globalManager.pairSelection.Observe(ms(took))
	}
}

// RecordRatingError increments the rejected rating updates counter.
func RecordRatingError() {
	if globalManager.enabled {
		globalManager.ratingErrors.Inc()
	}
}

// RecordReplay records a full replay and what triggered it.
func RecordReplay(cause string, took time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.replays.WithLabelValues(cause).Inc()
	globalManager.replayDuration.Observe(ms(took))
}

// RecordReplayDivergence increments the replay divergence counter.
func RecordReplayDivergence() {
	if globalManager.enabled {
		globalManager.replayDivergence.Inc()
	}
}

// UpdateSession sets the session gauges.
func UpdateSession(reliability float64, items, liveVotes int) {
	if !globalManager.enabled {
		return
	}
	globalManager.reliability.Set(reliability)
	globalManager.items.Set(float64(items))
	globalManager.ledgerLength.Set(float64(liveVotes))
}

// RecordRankingQuery records a rankings index query latency.
func RecordRankingQuery(took time.Duration) {
	if globalManager.enabled {
		globalManager.rankingQueryLatency.Observe(ms(took))
	}
}

// UpdateRankedItems sets the rankings index size.
func UpdateRankedItems(n int) {
	if globalManager.enabled {
		globalManager.rankedItems.Set(float64(n))
	}
}

// RecordPersistence records a persistence operation and its outcome.
func RecordPersistence(op string, took time.Duration, err error) {
	if !globalManager.enabled {
		return
	}
	globalManager.persistenceLatency.WithLabelValues(op).Observe(ms(took))
	if err != nil {
		globalManager.persistenceErrors.WithLabelValues(op).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordCalibrationRun records a finished calibration simulation.
func RecordCalibrationRun(model string, took time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.calibrationRuns.WithLabelValues(model).Inc()
	globalManager.calibrationDuration.Observe(ms(took))
}

// UpdateWorkerActiveCount sets the number of busy calibration workers.
func UpdateWorkerActiveCount(count int) {
	if globalManager.enabled {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// UpdateSystemMemoryUsage sets the heap memory in use in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if globalManager.enabled {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
