package http

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/lunar-fishing-service/internal/lunar"
	"github.com/kjstillabower/lunar-fishing-service/internal/service"
	"github.com/kjstillabower/lunar-fishing-service/internal/validation"
)

const (
	locationMinLength = 1
	locationMaxLength = 100
)

// GetMoon handles GET /api/moon?date=YYYY-MM-DD. Without a date it reports today.
func (h *Handler) GetMoon(w http.ResponseWriter, r *http.Request) {
	day, err := parseDateParam(r.URL.Query().Get("date"), h.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":  day.Format(time.DateOnly),
		"phase": lunar.PhaseOf(day),
	})
}

// GetMoonCalendar handles GET /api/moon/calendar?year=&month=. Missing
// values default to the current month.
func (h *Handler) GetMoonCalendar(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	year, month := now.Year(), int(now.Month())
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "year must be between 1 and 9999")
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "month must be between 1 and 12")
			return
		}
		month = m
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"year":  year,
		"month": month,
		"days":  lunar.Calendar(year, time.Month(month)),
	})
}

// GetClassification handles GET /api/forecast/classify?label=.
func (h *Handler) GetClassification(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimSpace(r.URL.Query().Get("label"))
	if label == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "label is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"label":          label,
		"classification": lunar.Classify(label),
	})
}

// GetWeatherCurrent handles GET /api/weather/current?lat=&lon=. Without
// coordinates the visitor is treated as having denied geolocation.
func (h *Handler) GetWeatherCurrent(w http.ResponseWriter, r *http.Request) {
	geo, err := parseGeolocation(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	view := h.views.Get(visitorFrom(r.Context()))
	state, err := view.ByCurrentLocation(r.Context(), geo)
	h.writeViewResult(w, r, state, err)
}

// GetWeatherCity handles GET /api/weather/city?q=. A blank query leaves the
// view untouched and returns it as is.
func (h *Handler) GetWeatherCity(w http.ResponseWriter, r *http.Request) {
	view := h.views.Get(visitorFrom(r.Context()))
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusOK, view.State())
		return
	}
	city, err := validation.ValidateLocation(q, locationMinLength, locationMaxLength)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	state, err := view.ByCity(r.Context(), city)
	h.writeViewResult(w, r, state, err)
}

// GetWeatherDate handles GET /api/weather/date?location=&date=.
func (h *Handler) GetWeatherDate(w http.ResponseWriter, r *http.Request) {
	location, day, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}
	state, err := h.views.Get(visitorFrom(r.Context())).ByDate(r.Context(), location, day)
	h.writeViewResult(w, r, state, err)
}

// GetWeatherAstronomy handles GET /api/weather/astronomy?location=&date=.
func (h *Handler) GetWeatherAstronomy(w http.ResponseWriter, r *http.Request) {
	location, day, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}
	state, err := h.views.Get(visitorFrom(r.Context())).AstronomyByDate(r.Context(), location, day)
	h.writeViewResult(w, r, state, err)
}

// GetWeatherState handles GET /api/weather/state.
func (h *Handler) GetWeatherState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.views.Get(visitorFrom(r.Context())).State())
}

// locationAndDate reads the location (default location when blank) and the
// required date parameter, writing a 400 on failure.
func (h *Handler) locationAndDate(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	q := r.URL.Query()
	location := h.defaultLocation
	if raw := q.Get("location"); strings.TrimSpace(raw) != "" {
		loc, err := validation.ValidateLocation(raw, locationMinLength, locationMaxLength)
		if err != nil {
			writeServiceError(w, r, err)
			return "", time.Time{}, false
		}
		location = loc
	}
	if strings.TrimSpace(q.Get("date")) == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "date is required (YYYY-MM-DD)")
		return "", time.Time{}, false
	}
	day, err := parseDateParam(q.Get("date"), time.Time{})
	if err != nil {
		writeServiceError(w, r, err)
		return "", time.Time{}, false
	}
	return location, day, true
}

func (h *Handler) writeViewResult(w http.ResponseWriter, r *http.Request, state service.ViewState, err error) {
	h.recordUpstream(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// parseDateParam parses YYYY-MM-DD, returning fallback for an empty value.
func parseDateParam(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", validation.ErrInvalidInput)
	}
	return d, nil
}

// parseGeolocation treats missing coordinates as a denied permission.
func parseGeolocation(latRaw, lonRaw string) (service.Geolocation, error) {
	latRaw, lonRaw = strings.TrimSpace(latRaw), strings.TrimSpace(lonRaw)
	if latRaw == "" && lonRaw == "" {
		return service.Geolocation{}, nil
	}
	lat, err1 := strconv.ParseFloat(latRaw, 64)
	lon, err2 := strconv.ParseFloat(lonRaw, 64)
	if err1 != nil || err2 != nil || math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return service.Geolocation{}, fmt.Errorf("%w: lat and lon must be valid coordinates", validation.ErrInvalidInput)
	}
	return service.Geolocation{Granted: true, Lat: lat, Lon: lon}, nil
}
