//go:build integration
// +build integration

package http

import (
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/lunar-fishing-service/internal/lunar"
	"github.com/kjstillabower/lunar-fishing-service/internal/service"
)

// liveEnv runs the full stack against the real weather API. It needs
// WEATHER_API_KEY; WEATHER_API_URL overrides the endpoint.
func liveEnv(t *testing.T) *testEnv {
	t.Helper()
	key := os.Getenv("WEATHER_API_KEY")
	if key == "" {
		t.Skip("WEATHER_API_KEY not set")
	}
	base := os.Getenv("WEATHER_API_URL")
	if base == "" {
		base = "https://api.weatherapi.com/v1"
	}
	return newTestEnv(t, func(o *envOptions) {
		o.apiKey = key
		o.baseURL = strings.TrimRight(base, "/")
		o.cacheTTL = time.Minute
	})
}

func TestIntegration_WeatherCity(t *testing.T) {
	env := liveEnv(t)

	w := env.get("/api/weather/city?q=Santos")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var state service.ViewState
	decodeBody(t, w, &state)
	if state.Data == nil || state.Data.Location.Name == "" {
		t.Fatalf("data = %+v", state.Data)
	}
	if state.Data.Astro == nil {
		t.Fatal("forecast day carries no astro data")
	}
	if c := state.Data.Classification; c != lunar.ForecastExcellent && c != lunar.ForecastRegular {
		t.Errorf("classification = %q", c)
	}
}

func TestIntegration_UnknownLocation(t *testing.T) {
	env := liveEnv(t)

	assertError(t, env.get("/api/weather/city?q=Xyzzyqwvbn"), http.StatusNotFound, "LOCATION_NOT_FOUND")
}

func TestIntegration_AstronomyByDate(t *testing.T) {
	env := liveEnv(t)

	day := time.Now().Format(time.DateOnly)
	w := env.get("/api/weather/astronomy?location=Ubatuba&date=" + day)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var state service.ViewState
	decodeBody(t, w, &state)
	if state.Astronomy == nil || state.Astronomy.Astro.MoonPhase == "" {
		t.Errorf("astronomy = %+v", state.Astronomy)
	}
}

func TestIntegration_HealthAfterTraffic(t *testing.T) {
	env := liveEnv(t)

	env.get("/api/weather/city?q=Sao%20Paulo")
	env.get("/api/weather/city?q=Sao%20Paulo")

	w := env.get("/health")
	var body healthBody
	decodeBody(t, w, &body)
	if body.Status != "healthy" {
		t.Errorf("status = %q, checks = %v", body.Status, body.Checks)
	}
	if calls := env.api.calls(); calls != 0 {
		t.Errorf("fake API used by live env: %d calls", calls)
	}
}
