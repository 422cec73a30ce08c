// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackd_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackd_propagation_duration_seconds",
			Help:    "Duration of batch propagation runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	propagationSuccessTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_propagation_success_total",
			Help: "Satellites propagated successfully.",
		},
	)

	propagationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_propagation_errors_total",
			Help: "Satellite propagation failures.",
		},
	)

	propagationWorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_propagation_workers",
			Help: "Configured propagation worker pool size.",
		},
	)

	tleDatasetCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_tle_dataset_satellites",
			Help: "Number of satellites in the current TLE dataset.",
		},
	)

	tleDatasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_tle_dataset_age_seconds",
			Help: "Age of the current TLE dataset.",
		},
	)

	tleFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_tle_fetches_total",
			Help: "TLE fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_cache_hits_total",
			Help: "Position frame cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_cache_misses_total",
			Help: "Position frame cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_cache_evictions_total",
			Help: "Position frames evicted from the cache.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_cache_entries",
			Help: "Position frames currently cached.",
		},
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_cache_size_bytes",
			Help: "Estimated cache memory footprint.",
		},
	)

	cacheRegenErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_cache_regeneration_errors_total",
			Help: "Failed cache frame generations.",
		},
	)

	cacheRegenDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackd_cache_regeneration_duration_seconds",
			Help:    "Duration of cache frame generation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	cacheGracePeriodActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_cache_grace_period_active",
			Help: "1 while a TLE cutover rebuild is in progress.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_stream_connections_total",
			Help: "SSE stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_streams_active",
			Help: "Currently connected SSE streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_stream_bytes_total",
			Help: "Bytes written to SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_stream_errors_total",
			Help: "SSE stream errors by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDuration,
		propagationSuccessTotal,
		propagationErrorsTotal,
		propagationWorkersActive,
		tleDatasetCount,
		tleDatasetAgeSeconds,
		tleFetchesTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		cacheSizeBytes,
		cacheRegenErrorsTotal,
		cacheRegenDuration,
		cacheGracePeriodActive,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch propagation run.
func RecordPropagation(d time.Duration, success, errors int) {
	propagationDuration.Observe(d.Seconds())
	propagationSuccessTotal.Add(float64(success))
	propagationErrorsTotal.Add(float64(errors))
}

// SetPropagationWorkersActive publishes the worker pool size.
func SetPropagationWorkersActive(n int) { propagationWorkersActive.Set(float64(n)) }

// SetTLEDatasetCount publishes the satellite count of the current dataset.
func SetTLEDatasetCount(n int) { tleDatasetCount.Set(float64(n)) }

// SetTLEDatasetAge publishes the dataset age in seconds.
func SetTLEDatasetAge(seconds float64) { tleDatasetAgeSeconds.Set(seconds) }

// IncTLEFetch counts a TLE fetch attempt ("success" or "error").
func IncTLEFetch(outcome string) { tleFetchesTotal.WithLabelValues(outcome).Inc() }

// Cache instrumentation.

func IncCacheHits()               { cacheHitsTotal.Inc() }
func IncCacheMisses()             { cacheMissesTotal.Inc() }
func AddCacheEvictions(n int)     { cacheEvictionsTotal.Add(float64(n)) }
func SetCacheEntries(n int)       { cacheEntries.Set(float64(n)) }
func SetCacheSizeBytes(n int64)   { cacheSizeBytes.Set(float64(n)) }
func IncCacheRegenerationErrors() { cacheRegenErrorsTotal.Inc() }

// ObserveCacheRegenerationDuration records one frame generation.
func ObserveCacheRegenerationDuration(d time.Duration) {
	cacheRegenDuration.Observe(d.Seconds())
}

// SetCacheGracePeriodActive flags an in-progress TLE cutover.
func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriodActive.Set(1)
	} else {
		cacheGracePeriodActive.Set(0)
	}
}

// Stream instrumentation.

func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)            { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(kind string)       { streamErrorsTotal.WithLabelValues(kind).Inc() }

// knownRoutes are exact paths that keep their own label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/tle/metadata":     true,
	"/api/v1/tle/fetch":        true,
	"/api/v1/lookangles":       true,
	"/api/v1/visibility":       true,
	"/api/v1/passes":           true,
	"/api/v1/cache/stats":      true,
	"/api/v1/stream/positions": true,
}

// normalizeRoute collapses parameterized and unknown paths so the path label
// stays low-cardinality: one label per catalog-ID route, "other" for noise.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/subpoint/") {
		return "/api/v1/subpoint/{catalog_id}"
	}
	if strings.HasPrefix(path, "/api/v1/track/") {
		return "/api/v1/track/{catalog_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
