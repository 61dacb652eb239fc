package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitDecisionsTotal *prometheus.CounterVec
	RateLimitPenaltiesTotal *prometheus.CounterVec
	RateLimitActiveBlocks   prometheus.Gauge
	RateLimitTrackedClients *prometheus.GaugeVec
	RateLimitSweepDuration  prometheus.Histogram
	RateLimitSweptEntries   *prometheus.CounterVec

	// User store metrics
	UserStoreOperationsTotal   *prometheus.CounterVec
	UserStoreOperationDuration *prometheus.HistogramVec
	UserStoreFailOpenTotal     prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxbot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taxbot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxbot_ratelimit_decisions_total",
				Help: "Total number of rate limit decisions",
			},
			[]string{"category", "allowed", "reason"},
		),
		RateLimitPenaltiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxbot_ratelimit_penalties_total",
				Help: "Total number of escalating penalties applied",
			},
			[]string{"violation_stage"},
		),
		RateLimitActiveBlocks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taxbot_ratelimit_active_blocks",
				Help: "Number of client identities currently under an active penalty",
			},
		),
		RateLimitTrackedClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taxbot_ratelimit_tracked_clients",
				Help: "Number of client entries tracked per guard state map",
			},
			[]string{"guard"},
		),
		RateLimitSweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taxbot_ratelimit_sweep_duration_seconds",
				Help:    "Duration of the periodic guard-state sweep",
				Buckets: prometheus.DefBuckets,
			},
		),
		RateLimitSweptEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxbot_ratelimit_swept_entries_total",
				Help: "Total number of stale guard entries removed by sweeps",
			},
			[]string{"guard"},
		),

		UserStoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxbot_user_store_operations_total",
				Help: "Total number of user store operations",
			},
			[]string{"operation", "status"},
		),
		UserStoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taxbot_user_store_operation_duration_seconds",
				Help:    "User store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		UserStoreFailOpenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taxbot_user_store_fail_open_total",
				Help: "Times the monthly quota stage failed open because the user store was unavailable",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitDecisionsTotal,
		m.RateLimitPenaltiesTotal,
		m.RateLimitActiveBlocks,
		m.RateLimitTrackedClients,
		m.RateLimitSweepDuration,
		m.RateLimitSweptEntries,
		m.UserStoreOperationsTotal,
		m.UserStoreOperationDuration,
		m.UserStoreFailOpenTotal,
	)

	return m
}

// ObserveDecision records a rate limit decision
func (m *Metrics) ObserveDecision(category string, allowed bool, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.RateLimitDecisionsTotal.WithLabelValues(category, strconv.FormatBool(allowed), reason).Inc()
}

// ObservePenalty records an applied penalty at the given violation count
func (m *Metrics) ObservePenalty(violationCount int) {
	stage := strconv.Itoa(violationCount)
	if violationCount >= 4 {
		stage = "4+"
	}
	m.RateLimitPenaltiesTotal.WithLabelValues(stage).Inc()
}

// Handler returns the Prometheus metrics HTTP handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status for metric labels
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMetricsMiddleware instruments request counts and latencies
func (m *Metrics) HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
