package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Watch for: p95/p99 increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests being served.
	HTTPRequestsInFlight prometheus.Gauge

	// Weather API calls by endpoint (forecast, astronomy) and status class.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Weather API latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Weather API failures by category (see client.CategorizeError).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Retry attempts for weather API calls. Zero unless retries are configured.
	WeatherAPIRetriesTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache hits per cache type.
	CacheHitsTotal *prometheus.CounterVec

	// Cache errors per operation (get, set).
	CacheErrorsTotal *prometheus.CounterVec

	// Upstream calls that were shared with an identical in-flight call.
	CoalescedRequestsTotal prometheus.Counter

	// Weather view queries by mode (current, city, date, astronomy).
	WeatherQueriesTotal *prometheus.CounterVec

	// Per-location query count (allow-list; others go to "other").
	WeatherQueriesByLocationTotal *prometheus.CounterVec

	// Responses dropped because a newer query for the same view started.
	StaleResponsesDiscardedTotal prometheus.Counter

	// Geolocation fallbacks to the default location.
	LocationDeniedTotal prometheus.Counter

	// Catch operations by op (list, list_public, create, delete) and outcome.
	CatchOperationsTotal *prometheus.CounterVec

	// Size of uploaded catch photos.
	PhotoUploadBytes prometheus.Histogram

	// Auth events by event (signup, signin, signout) and outcome.
	AuthEventsTotal *prometheus.CounterVec

	// Rate limit denials on the weather routes.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming runs and failed runs.
	CacheWarmingTotal       prometheus.Counter
	CacheWarmingErrorsTotal prometheus.Counter

	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather API latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Weather API failures by category",
		},
		[]string{"category"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
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
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)
	CoalescedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Upstream weather calls shared with an identical in-flight call",
		},
	)
	WeatherQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Weather view queries by mode",
		},
		[]string{"mode"},
	)
	WeatherQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByLocationTotal",
			Help: "Weather queries by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	StaleResponsesDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleResponsesDiscardedTotal",
			Help: "Weather responses dropped because a newer query superseded them",
		},
	)
	LocationDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "locationDeniedTotal",
			Help: "Current-location queries that fell back to the default location",
		},
	)
	CatchOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchOperationsTotal",
			Help: "Catch repository operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)
	PhotoUploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photoUploadBytes",
			Help:    "Size of uploaded catch photos in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 6),
		},
	)
	AuthEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authEventsTotal",
			Help: "Authentication events by event and outcome",
		},
		[]string{"event", "outcome"},
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
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed location",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal, WeatherAPIRetriesTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheHitsTotal, CacheErrorsTotal, CoalescedRequestsTotal,
		WeatherQueriesTotal, WeatherQueriesByLocationTotal,
		StaleResponsesDiscardedTotal, LocationDeniedTotal,
		CatchOperationsTotal, PhotoUploadBytes,
		AuthEventsTotal, RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal,
	)
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordWeatherQuery records a view query of the given mode for a location.
func RecordWeatherQuery(mode, location string) {
	WeatherQueriesTotal.WithLabelValues(mode).Inc()
	WeatherQueriesByLocationTotal.WithLabelValues(MetricLocationLabel(location)).Inc()
}

// MetricLocationLabel returns the normalized location when tracked, "other" otherwise.
func MetricLocationLabel(location string) string {
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc]
	trackedLocationsMu.RUnlock()
	if ok {
		return loc
	}
	return "other"
}

// RecordCatchOperation counts a catch repository operation.
func RecordCatchOperation(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	CatchOperationsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordAuthEvent counts an authentication event.
func RecordAuthEvent(event string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordCircuitBreakerTransition records a state change and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(circuitBreakerStateValue(to))
}

func circuitBreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

func normalizeLocationForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
