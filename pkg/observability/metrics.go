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

	// Authorization metrics
	AuthzDecisionsTotal   *prometheus.CounterVec
	AuthzDecisionDuration *prometheus.HistogramVec
	AuthzCacheHitsTotal   prometheus.Counter

	// Session metrics
	SessionResolutionsTotal *prometheus.CounterVec
	SessionCacheHitsTotal   prometheus.Counter
	SessionCacheMissesTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentgrid_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rentgrid_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentgrid_authz_decisions_total",
				Help: "Total number of permission decisions",
			},
			[]string{"resource_type", "action", "outcome"},
		),
		AuthzDecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rentgrid_authz_decision_duration_seconds",
				Help:    "Permission decision latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"resource_type"},
		),
		AuthzCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rentgrid_authz_cache_hits_total",
				Help: "Permission decisions answered from the request-scoped memo",
			},
		),

		SessionResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentgrid_session_resolutions_total",
				Help: "Total number of session token resolutions",
			},
			[]string{"outcome"},
		),
		SessionCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rentgrid_session_cache_hits_total",
				Help: "Session resolutions served from the redis cache",
			},
		),
		SessionCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rentgrid_session_cache_misses_total",
				Help: "Session resolutions that fell through to the database",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rentgrid_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rentgrid_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionDuration,
		m.AuthzCacheHitsTotal,
		m.SessionResolutionsTotal,
		m.SessionCacheHitsTotal,
		m.SessionCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveAuthzDecision records a single permission decision
func (m *Metrics) ObserveAuthzDecision(resourceType, action string, allowed bool, duration time.Duration) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(resourceType, action, outcome).Inc()
	m.AuthzDecisionDuration.WithLabelValues(resourceType).Observe(duration.Seconds())
}

// MetricsMiddleware instruments HTTP handlers with request metrics
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	})
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns an HTTP handler serving the metrics registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
