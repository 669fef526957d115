// Package telemetry holds the Prometheus collectors for the relay and the
// HTTP middleware that feeds them.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secavis_retrievals_total",
			Help: "Total number of fetch-and-register requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	retrievalDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "secavis_retrieval_duration_seconds",
			Help:    "Histogram of browser automation durations.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	forwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secavis_forwards_total",
			Help: "Total number of intake forwards, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	storeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secavis_store_errors_total",
			Help: "Total number of idempotency store failures, labeled by operation.",
		},
		[]string{"op"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "secavis_active_sessions",
			Help: "Number of browser instances currently running.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "secavis_rate_limit_delays_seconds",
			Help:    "Histogram of portal rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveRetrieval records one pipeline outcome ("done", "duplicate", ...).
func ObserveRetrieval(outcome string) {
	retrievalsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetrievalDuration records how long a browser run took.
func ObserveRetrievalDuration(d time.Duration) {
	retrievalDurationSeconds.Observe(d.Seconds())
}

// ObserveForward records an intake forward outcome.
func ObserveForward(outcome string) {
	forwardsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStoreError records a failed store operation.
func ObserveStoreError(op string) {
	storeErrorsTotal.WithLabelValues(op).Inc()
}

// IncActiveSessions increments the running browser gauge.
func IncActiveSessions() {
	activeSessions.Inc()
}

// DecActiveSessions decrements the running browser gauge.
func DecActiveSessions() {
	activeSessions.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
