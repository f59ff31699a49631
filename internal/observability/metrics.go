package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tier labels used by TierResolutionsTotal.
const (
	TierCache   = "cache"
	TierSpatial = "spatial"
	TierRemote  = "remote"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Enrich requests are long-running by nature; watch p95 vs request timeout.
	HTTPRequestDuration *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge

	// Reverse-geocoding provider calls by status. Watch for: error vs success ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// Provider latency. Watch for: p99 close to provider timeout.
	ProviderDuration *prometheus.HistogramVec

	// Final provider failures by category (timeout, rate_limited, upstream_5xx, ...).
	ProviderErrorsTotal *prometheus.CounterVec

	// Retry attempts against the provider. High values = unstable upstream or invalid responses.
	ProviderRetriesTotal *prometheus.CounterVec

	// Number of times the outbound rate limiter suspended a caller.
	RateLimitWaitsTotal prometheus.Counter

	// Time spent suspended by the outbound rate limiter.
	RateLimitWaitSeconds prometheus.Histogram

	// Cache lookups by result (hit, miss, error).
	CacheLookupsTotal *prometheus.CounterVec

	// Cache write-backs by result (success, error, skipped).
	CacheWritesTotal *prometheus.CounterVec

	// Cache warming runs and their duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Points resolved per tier. Watch for: remote share growing = boundary coverage gap.
	TierResolutionsTotal *prometheus.CounterVec

	// Spatial tier runs discarded because at least one point was unmatched.
	SpatialEscalationsTotal prometheus.Counter

	// Remote lookups that joined an identical in-flight lookup instead of calling the provider.
	CoalescedLookupsTotal prometheus.Counter

	// Points whose remote resolution exhausted retries.
	DroppedPointsTotal prometheus.Counter

	// Points per enrich call.
	EnrichBatchSize prometheus.Histogram

	// Inbound 429s on /enrich.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	CircuitBreakerTransitionsTotal *prometheus.CounterVec
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
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 120, 300},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocoderApiCallsTotal",
			Help: "Total number of reverse-geocoding provider calls",
		},
		[]string{"status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocoderApiDurationSeconds",
			Help:    "Reverse-geocoding provider latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocoderApiErrorsTotal",
			Help: "Provider failures that exhausted retries, by category",
		},
		[]string{"category"},
	)
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocoderApiRetriesTotal",
			Help: "Retry attempts against the provider by failure kind",
		},
		[]string{"reason"},
	)
	RateLimitWaitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geocoderRateLimitWaitsTotal",
			Help: "Times the outbound rate limiter suspended a caller",
		},
	)
	RateLimitWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocoderRateLimitWaitSeconds",
			Help:    "Seconds spent waiting for the outbound rate window",
			Buckets: []float64{.1, 1, 5, 15, 30, 60},
		},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Location cache lookups by result",
		},
		[]string{"result"},
	)
	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWritesTotal",
			Help: "Location cache write-backs by result",
		},
		[]string{"result"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming duration in seconds",
			Buckets: []float64{.1, 1, 5, 30, 120},
		},
	)
	TierResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierResolutionsTotal",
			Help: "Points resolved per tier",
		},
		[]string{"tier"},
	)
	SpatialEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spatialEscalationsTotal",
			Help: "Spatial tier runs escalated to the remote provider",
		},
	)
	CoalescedLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedLookupsTotal",
			Help: "Remote lookups served by an identical in-flight lookup",
		},
	)
	DroppedPointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "droppedPointsTotal",
			Help: "Points whose remote resolution exhausted retries",
		},
	)
	EnrichBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichBatchSize",
			Help:    "Points per enrich call",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by the inbound rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderDuration, ProviderErrorsTotal, ProviderRetriesTotal,
		RateLimitWaitsTotal, RateLimitWaitSeconds,
		CacheLookupsTotal, CacheWritesTotal, CacheWarmingTotal, CacheWarmingDurationSeconds,
		TierResolutionsTotal, SpatialEscalationsTotal, CoalescedLookupsTotal, DroppedPointsTotal, EnrichBatchSize,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RecordCircuitBreakerTransition records a state change and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
