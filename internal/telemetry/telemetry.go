// Package telemetry exposes Prometheus metrics for the gateway.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kleinsuche_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kleinsuche_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 150},
		},
		[]string{"method", "route"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kleinsuche_cache_ops_total",
			Help: "Cache operations, labeled by entry prefix and result.",
		},
		[]string{"prefix", "result"},
	)

	scrapeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kleinsuche_scrape_duration_seconds",
			Help:    "Histogram of browser scrape durations.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
		},
	)

	rateGateDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kleinsuche_rate_gate_delay_seconds",
			Help:    "Histogram of time requests spent waiting for admission.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	postalCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kleinsuche_postal_cache_entries",
			Help: "Number of rounded coordinates held by the reverse-geocode cache.",
		},
	)
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCacheOp counts a cache hit, miss or store for the given prefix.
func ObserveCacheOp(prefix, result string) {
	cacheOpsTotal.WithLabelValues(prefix, result).Inc()
}

// ObserveScrape records the duration of one browser search.
func ObserveScrape(duration time.Duration) {
	scrapeDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateGateDelay records how long a request waited at the gate.
func ObserveRateGateDelay(duration time.Duration) {
	rateGateDelaySeconds.Observe(duration.Seconds())
}

// SetPostalCacheEntries reports the reverse-geocode cache cardinality.
// The cache never expires entries, so this gauge is how growth is watched.
func SetPostalCacheEntries(n int) {
	postalCacheEntries.Set(float64(n))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
