package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls by upstream (weather, geocoding, ip_lookup, generative) and status.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Generative calls with web search are expected to be slow (p95 > 5s is normal).
	UpstreamDuration *prometheus.HistogramVec

	// Cache loads by result: hit, miss, expired, placeholder, error.
	CacheLoadsTotal *prometheus.CounterVec

	// Cache saves by status.
	CacheSavesTotal *prometheus.CounterVec

	// Which step of the location chain produced the descriptor.
	LocationResolutionsTotal *prometheus.CounterVec

	// Failed fetches by error kind. Watch for: configuration_missing (never self-heals).
	FetchFailuresTotal *prometheus.CounterVec

	// Refresh outcomes: fetched, cached, failed, discarded (superseded by a newer refresh).
	RefreshesTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0=closed, 1=open, 2=half_open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// 1 while the service is waiting for a missing credential.
	SetupRequired prometheus.Gauge
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
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream calls by upstream and status",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream", "status"},
	)
	CacheLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLoadsTotal",
			Help: "Cache loads by result (hit, miss, expired, placeholder, error)",
		},
		[]string{"result"},
	)
	CacheSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheSavesTotal",
			Help: "Cache saves by status",
		},
		[]string{"status"},
	)
	LocationResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationResolutionsTotal",
			Help: "Location resolutions by the chain step that produced the descriptor",
		},
		[]string{"step"},
	)
	FetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchFailuresTotal",
			Help: "Failed weather acquisitions by error kind",
		},
		[]string{"kind"},
	)
	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshesTotal",
			Help: "Refresh outcomes (fetched, cached, failed, discarded)",
		},
		[]string{"outcome"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
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
	SetupRequired = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "setupRequired",
			Help: "1 while a required credential is missing",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		CacheLoadsTotal, CacheSavesTotal,
		LocationResolutionsTotal, FetchFailuresTotal, RefreshesTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		SetupRequired,
	)
}

// ObserveUpstream records one upstream call.
func ObserveUpstream(upstream, status string, seconds float64) {
	UpstreamCallsTotal.WithLabelValues(upstream, status).Inc()
	UpstreamDuration.WithLabelValues(upstream, status).Observe(seconds)
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// StatusLabel maps an HTTP status code to a low-cardinality metric label.
func StatusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
