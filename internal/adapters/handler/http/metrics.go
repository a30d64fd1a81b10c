package http

import (
	"strconv"
	"time"

	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Agent lifecycle metrics
	agentOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_operations_total",
			Help: "Total number of agent lifecycle operations by outcome",
		},
		[]string{"framework", "operation", "outcome"},
	)

	agentsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agents_running",
			Help: "Number of agents currently in running status",
		},
		[]string{"framework"},
	)

	// Query metrics
	queryAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_attempts",
			Help:    "Attempts consumed per query call",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"framework"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "Query execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"framework", "outcome"},
	)

	orphanedQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orphaned_queries_total",
			Help: "Query tasks abandoned by a timed-out waiter",
		},
		[]string{"framework"},
	)
)

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics for WebSocket upgrade requests
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAgentOp counts one lifecycle operation
func RecordAgentOp(framework, operation, outcome string) {
	agentOpsTotal.WithLabelValues(framework, operation, outcome).Inc()
}

// SetRunningAgents sets the running gauge for one framework
func SetRunningAgents(framework string, count int) {
	agentsRunning.WithLabelValues(framework).Set(float64(count))
}

// RecordQuery records one completed query call
func RecordQuery(framework, outcome string, attempts int, duration time.Duration) {
	queryAttempts.WithLabelValues(framework).Observe(float64(attempts))
	queryDuration.WithLabelValues(framework, outcome).Observe(duration.Seconds())
}

// RecordOrphanedQuery counts a query abandoned by its waiter
func RecordOrphanedQuery(framework string) {
	orphanedQueries.WithLabelValues(framework).Inc()
}
