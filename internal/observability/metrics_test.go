package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies label dimensions match their call sites.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/api/weather/city", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/weather/city").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("forecast", "success").Inc()
	WeatherAPIDuration.WithLabelValues("astronomy", "client_error").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("location_not_found").Inc()
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	PhotoUploadBytes.Observe(2048)
}

func TestSetTrackedLocations_MetricLocationLabel(t *testing.T) {
	SetTrackedLocations([]string{"Sao Paulo", "santos"})
	defer SetTrackedLocations(nil)

	if got := MetricLocationLabel("  SAO PAULO "); got != "sao paulo" {
		t.Errorf("MetricLocationLabel(tracked) = %q, want %q", got, "sao paulo")
	}
	if got := MetricLocationLabel("-23.5,-46.6"); got != "other" {
		t.Errorf("MetricLocationLabel(untracked) = %q, want other", got)
	}
	RecordWeatherQuery("city", "santos")
}

func TestRecordCatchOperation(t *testing.T) {
	before := testutil.ToFloat64(CatchOperationsTotal.WithLabelValues("delete", "error"))
	RecordCatchOperation("delete", errors.New("boom"))
	after := testutil.ToFloat64(CatchOperationsTotal.WithLabelValues("delete", "error"))
	if after-before != 1 {
		t.Errorf("catchOperationsTotal{delete,error} delta = %v, want 1", after-before)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("weather_api", "closed", "open")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("weather_api")); got != 2 {
		t.Errorf("circuitBreakerState = %v, want 2", got)
	}
	RecordCircuitBreakerTransition("weather_api", "open", "half-open")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("weather_api")); got != 1 {
		t.Errorf("circuitBreakerState = %v, want 1", got)
	}
}

func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
