package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/agri-query-service/internal/traffic"
)

// ServiceName identifies this service in logs and the health payload.
const ServiceName = "agri-query-service"

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Dispatches by narrative readiness. Watch for: rising narrativeReady="false" (total outage).
	DispatchRequestsTotal *prometheus.CounterVec

	// Capability outcomes by status and source.
	CapabilityResultsTotal *prometheus.CounterVec

	// Capability latency including cache lookups and retries.
	CapabilityDuration *prometheus.HistogramVec

	// Dispatcher retry attempts per capability. Watch for: unstable backends.
	CapabilityRetriesTotal *prometheus.CounterVec

	// Backend HTTP calls by backend and status label.
	BackendCallsTotal *prometheus.CounterVec

	// Backend latency. Watch for: p95 approaching the capability budget.
	BackendDuration *prometheus.HistogramVec

	// Backend errors by stable category.
	BackendErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache hits per capability. Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	// Cache misses per capability.
	CacheMissesTotal *prometheus.CounterVec

	// Expired entries served after an upstream failure.
	CacheStaleServesTotal *prometheus.CounterVec

	// Cache store errors by operation and category. Watch for: store outages (pass-through mode).
	CacheErrorsTotal *prometheus.CounterVec

	// Cache store round-trip latency.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Callers that received a result computed by another caller's in-flight request.
	CacheCoalescedTotal *prometheus.CounterVec

	// Cache warming runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Crop recommendations served by the rule-based estimator.
	CropFallbackTotal prometheus.Counter

	// Model bundle health (1 loaded, 0 corrupted).
	ModelLoaded prometheus.Gauge

	// Location resolutions by source and result.
	LocationResolutionsTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
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
	DispatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchRequestsTotal",
			Help: "Total number of dispatches by narrative readiness",
		},
		[]string{"narrativeReady"},
	)
	CapabilityResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capabilityResultsTotal",
			Help: "Capability outcomes by status, source and error kind",
		},
		[]string{"capability", "status", "source", "errorKind"},
	)
	CapabilityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capabilityDurationSeconds",
			Help:    "Capability latency in seconds including cache and retries",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"capability"},
	)
	CapabilityRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capabilityRetriesTotal",
			Help: "Total number of dispatcher retry attempts per capability",
		},
		[]string{"capability"},
	)
	BackendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendCallsTotal",
			Help: "Total number of backend HTTP calls",
		},
		[]string{"backend", "status"},
	)
	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendDurationSeconds",
			Help:    "Backend HTTP latency in seconds (per call)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "status"},
	)
	BackendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendErrorsTotal",
			Help: "Backend errors by category",
		},
		[]string{"backend", "category"},
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
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of fresh cache hits",
		},
		[]string{"capability"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses (including expired entries)",
		},
		[]string{"capability"},
	)
	CacheStaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStaleServesTotal",
			Help: "Expired entries served after an upstream failure",
		},
		[]string{"capability"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache store errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache store operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "result"},
	)
	CacheCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheCoalescedTotal",
			Help: "Callers served by another caller's in-flight computation",
		},
		[]string{"capability"},
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
			Help: "Cache warming runs with at least one failed coordinate",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	CropFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cropFallbackTotal",
			Help: "Crop recommendations served by the rule-based estimator",
		},
	)
	ModelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cropModelLoaded",
			Help: "Crop model bundle health (1 loaded, 0 corrupted)",
		},
	)
	LocationResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationResolutionsTotal",
			Help: "Location resolutions by source and result",
		},
		[]string{"source", "result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		DispatchRequestsTotal, CapabilityResultsTotal, CapabilityDuration, CapabilityRetriesTotal,
		BackendCallsTotal, BackendDuration, BackendErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheStaleServesTotal, CacheErrorsTotal,
		CacheOperationDurationSeconds, CacheCoalescedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		CropFallbackTotal, ModelLoaded,
		LocationResolutionsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges over the given window.
// Call from main after config load; later calls are no-ops.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordCircuitBreakerTransition updates breaker metrics for a state change.
// State names are "closed", "open" and "half-open"/"half_open".
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(circuitStateValue(to))
}

func circuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open", "half_open":
		return 2
	default:
		return 0
	}
}

// SetModelLoaded records crop model health.
func SetModelLoaded(loaded bool) {
	if loaded {
		ModelLoaded.Set(1)
		return
	}
	ModelLoaded.Set(0)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
