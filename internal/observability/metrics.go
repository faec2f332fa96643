package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream GeoJSON feed calls by feed and status. Watch for: error vs success ratio.
	FeedCallsTotal *prometheus.CounterVec

	// Upstream feed latency. The plate dataset is large; expect it to dominate p99.
	FeedDuration *prometheus.HistogramVec

	// Retry attempts per feed. Watch for: high retries = unstable upstream.
	FeedRetriesTotal *prometheus.CounterVec

	// Cache hits per feed.
	CacheHitsTotal *prometheus.CounterVec

	// Cache errors by operation and reason.
	CacheErrorsTotal *prometheus.CounterVec

	// Stale cache served after an upstream failure.
	StaleCacheServesTotal *prometheus.CounterVec

	// Requests that joined an in-flight upstream fetch instead of starting one.
	CoalescedRequestsTotal *prometheus.CounterVec

	// Layer loads by layer and result (populated, empty).
	LayerLoadsTotal *prometheus.CounterVec

	// Failed layer loads by layer and error category. These never reach users.
	LayerLoadFailuresTotal *prometheus.CounterVec

	// Layers rendered in the most recent load.
	LayerFeatures *prometheus.GaugeVec

	// Feed features dropped because they carry no geometry.
	FeaturesSkippedTotal *prometheus.CounterVec

	// Circuit breaker state per feed (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	FeedCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedCallsTotal",
			Help: "Total number of upstream GeoJSON feed calls",
		},
		[]string{"feed", "status"},
	)
	FeedDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedDurationSeconds",
			Help:    "Upstream GeoJSON feed latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"feed", "status"},
	)
	FeedRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedRetriesTotal",
			Help: "Total number of retry attempts for feed calls",
		},
		[]string{"feed"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of fresh cache hits per feed",
		},
		[]string{"feed"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache errors by operation and reason",
		},
		[]string{"op", "reason"},
	)
	StaleCacheServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleCacheServesTotal",
			Help: "Snapshots served from stale cache after an upstream failure",
		},
		[]string{"feed"},
	)
	CoalescedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Feed lookups that shared an in-flight upstream call",
		},
		[]string{"feed"},
	)
	LayerLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layerLoadsTotal",
			Help: "Layer loads by layer and result",
		},
		[]string{"layer", "result"},
	)
	LayerLoadFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layerLoadFailuresTotal",
			Help: "Failed layer loads by layer and error category",
		},
		[]string{"layer", "category"},
	)
	LayerFeatures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "layerFeatures",
			Help: "Number of rendered layers in the last load",
		},
		[]string{"layer"},
	)
	FeaturesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featuresSkippedTotal",
			Help: "Feed features without geometry that were not rendered",
		},
		[]string{"layer"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per feed (0 closed, 1 open, 2 half-open)",
		},
		[]string{"feed"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"feed", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed feed",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		FeedCallsTotal, FeedDuration, FeedRetriesTotal,
		CacheHitsTotal, CacheErrorsTotal, StaleCacheServesTotal, CoalescedRequestsTotal,
		LayerLoadsTotal, LayerLoadFailuresTotal, LayerFeatures, FeaturesSkippedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
	)
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(feed, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(feed, from, to).Inc()
	CircuitBreakerState.WithLabelValues(feed).Set(float64(state))
}

// RecordLayerLoad records the outcome of one layer load.
func RecordLayerLoad(layer string, rendered int) {
	result := "populated"
	if rendered == 0 {
		result = "empty"
	}
	LayerLoadsTotal.WithLabelValues(layer, result).Inc()
	LayerFeatures.WithLabelValues(layer).Set(float64(rendered))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
