// Package metrics provides Prometheus metrics for the price resolution engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResolvesTotal counts resolution outcomes by data class and result.
	ResolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_resolves_total",
			Help: "Total number of price resolutions by data class and outcome",
		},
		[]string{"data_class", "outcome"},
	)

	// ResolveDuration is a histogram of end-to-end resolution latency.
	ResolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_resolve_duration_seconds",
			Help:    "Duration of price resolution operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"data_class"},
	)

	// CacheEventsTotal counts cache hits, misses and stale fallbacks.
	CacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_events_total",
			Help: "Total number of cache events (hit, miss, stale_hit)",
		},
		[]string{"event"},
	)

	// SourceFetchesTotal counts adapter calls by source and status.
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of source fetch attempts by status",
		},
		[]string{"source", "status"},
	)

	// SourceFetchDuration is a histogram of adapter call latency.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of source fetch calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	// BreakerState is a gauge of each source's breaker state
	// (0=closed, 1=half_open, 2=open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half_open, 2=open)",
		},
		[]string{"source"},
	)

	// BreakerTransitionsTotal counts breaker state transitions.
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_breaker_transitions_total",
			Help: "Total number of circuit breaker transitions per source",
		},
		[]string{"source", "to"},
	)

	// RateLimitSkipsTotal counts candidates skipped by the local limiter.
	RateLimitSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_rate_limit_skips_total",
			Help: "Total number of candidates skipped due to local rate limiting",
		},
		[]string{"source"},
	)

	// BatchSize is a histogram of batch resolution sizes.
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_batch_size",
			Help:    "Number of queries per batch resolution",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

// Init initializes Prometheus metrics registry.
func Init() {
	prometheus.MustRegister(
		ResolvesTotal,
		ResolveDuration,
		CacheEventsTotal,
		SourceFetchesTotal,
		SourceFetchDuration,
		BreakerState,
		BreakerTransitionsTotal,
		RateLimitSkipsTotal,
		BatchSize,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordResolve records a resolution outcome.
func RecordResolve(dataClass, outcome string, duration time.Duration) {
	ResolvesTotal.WithLabelValues(dataClass, outcome).Inc()
	ResolveDuration.WithLabelValues(dataClass).Observe(duration.Seconds())
}

// RecordCacheEvent records a cache hit, miss or stale fallback.
func RecordCacheEvent(event string) {
	CacheEventsTotal.WithLabelValues(event).Inc()
}

// RecordSourceFetch records an adapter call.
func RecordSourceFetch(source, status string, duration time.Duration) {
	SourceFetchesTotal.WithLabelValues(source, status).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordBreakerTransition records a breaker state change.
func RecordBreakerTransition(source, to string) {
	BreakerTransitionsTotal.WithLabelValues(source, to).Inc()

	val := 0.0
	switch to {
	case "half_open":
		val = 1.0
	case "open":
		val = 2.0
	}
	BreakerState.WithLabelValues(source).Set(val)
}

// RecordRateLimitSkip records a candidate skipped by the local limiter.
func RecordRateLimitSkip(source string) {
	RateLimitSkipsTotal.WithLabelValues(source).Inc()
}

// RecordBatch records the size of a batch resolution.
func RecordBatch(size int) {
	BatchSize.Observe(float64(size))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
