package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
)

// DefaultLocation is queried when the visitor's position is unavailable.
const DefaultLocation = "Sao Paulo"

// WeatherFetcher is the subset of WeatherService a view needs.
type WeatherFetcher interface {
	Current(ctx context.Context, q string) (models.WeatherSnapshot, error)
	ForDate(ctx context.Context, q string, date time.Time) (models.WeatherSnapshot, error)
	AstronomyForDate(ctx context.Context, q string, date time.Time) (models.AstronomySnapshot, error)
}

// Geolocation is the outcome of asking the visitor for their position.
// Granted is false when the visitor denied the request or has no support.
type Geolocation struct {
	Granted bool
	Lat     float64
	Lon     float64
}

// Query returns the "lat,lon" form the weather API accepts.
func (g Geolocation) Query() string {
	return strconv.FormatFloat(g.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(g.Lon, 'f', -1, 64)
}

// ViewState is a copy of a WeatherView's observable state.
type ViewState struct {
	Loading        bool                      `json:"loading"`
	Error          string                    `json:"error,omitempty"`
	Data           *Forecast                 `json:"data"`
	Astronomy      *models.AstronomySnapshot `json:"astronomy,omitempty"`
	LocationDenied bool                      `json:"locationDenied"`
	Seq            uint64                    `json:"seq"`
	// Superseded marks the result of a query that a newer one overtook.
	// It carries that query's own outcome and was not written to the view.
	Superseded bool `json:"superseded,omitempty"`

	err error
}

// Err returns the error of the last completed query, if any.
func (s ViewState) Err() error { return s.err }

// WeatherView holds one visitor's weather query state. Every query takes a
// new sequence number; a response that arrives after a newer query started
// is never written to the view. Its caller gets a Superseded state built
// from its own result.
type WeatherView struct {
	fetcher         WeatherFetcher
	defaultLocation string
	now             func() time.Time

	mu     sync.Mutex
	latest uint64
	state  ViewState
}

// NewWeatherView returns an idle view. An empty defaultLocation means DefaultLocation.
func NewWeatherView(fetcher WeatherFetcher, defaultLocation string) *WeatherView {
	if strings.TrimSpace(defaultLocation) == "" {
		defaultLocation = DefaultLocation
	}
	return &WeatherView{fetcher: fetcher, defaultLocation: defaultLocation, now: time.Now}
}

// State returns a snapshot of the view.
func (v *WeatherView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// begin marks the view loading and returns the query's sequence number.
func (v *WeatherView) begin() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latest++
	v.state.Loading = true
	v.state.Error = ""
	v.state.err = nil
	v.state.Seq = v.latest
	return v.latest
}

// settle applies update to the view when seq is still the latest query and
// returns the resulting view state. Otherwise the view is left alone and
// update is applied to a fresh Superseded state instead.
func (v *WeatherView) settle(ctx context.Context, seq uint64, update func(*ViewState)) ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.latest {
		observability.StaleResponsesDiscardedTotal.Inc()
		observability.LoggerFrom(ctx).Debug("discarding stale weather response",
			zap.Uint64("seq", seq), zap.Uint64("latest", v.latest))
		own := ViewState{Seq: seq, Superseded: true}
		update(&own)
		return own
	}
	update(&v.state)
	v.state.Loading = false
	return v.state
}

func setErr(s *ViewState, err error) {
	s.err = err
	s.Error = err.Error()
}

// ByCurrentLocation queries the visitor's coordinates, or the default
// location with LocationDenied set when geolocation was not granted. The
// fallback is not an error.
func (v *WeatherView) ByCurrentLocation(ctx context.Context, geo Geolocation) (ViewState, error) {
	q, denied := v.defaultLocation, true
	if geo.Granted {
		q, denied = geo.Query(), false
	} else {
		observability.LocationDeniedTotal.Inc()
	}
	observability.RecordWeatherQuery("current", q)

	seq := v.begin()
	snap, err := v.fetcher.Current(ctx, q)
	st := v.settle(ctx, seq, func(s *ViewState) {
		s.LocationDenied = denied
		if err != nil {
			setErr(s, err)
			s.Data = nil
			return
		}
		f := DecorateForecast(snap, v.now())
		s.Data = &f
	})
	return st, err
}

// ByCity queries a city by name. A blank name leaves the view untouched and
// makes no upstream call.
func (v *WeatherView) ByCity(ctx context.Context, name string) (ViewState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return v.State(), nil
	}
	observability.RecordWeatherQuery("city", name)

	seq := v.begin()
	snap, err := v.fetcher.Current(ctx, name)
	st := v.settle(ctx, seq, func(s *ViewState) {
		if err != nil {
			setErr(s, err)
			s.Data = nil
			return
		}
		s.LocationDenied = false
		f := DecorateForecast(snap, v.now())
		s.Data = &f
	})
	return st, err
}

// ByDate queries the forecast for location on date.
func (v *WeatherView) ByDate(ctx context.Context, location string, date time.Time) (ViewState, error) {
	observability.RecordWeatherQuery("date", location)

	seq := v.begin()
	snap, err := v.fetcher.ForDate(ctx, location, date)
	st := v.settle(ctx, seq, func(s *ViewState) {
		if err != nil {
			setErr(s, err)
			s.Data = nil
			return
		}
		s.LocationDenied = false
		f := DecorateForecast(snap, date)
		s.Data = &f
	})
	return st, err
}

// AstronomyByDate fetches astronomy data for location on date, then the
// dated forecast. An astronomy failure is the query's error and clears both
// results; a forecast failure only clears Data.
func (v *WeatherView) AstronomyByDate(ctx context.Context, location string, date time.Time) (ViewState, error) {
	observability.RecordWeatherQuery("astronomy", location)

	seq := v.begin()
	astro, err := v.fetcher.AstronomyForDate(ctx, location, date)
	if err != nil {
		st := v.settle(ctx, seq, func(s *ViewState) {
			setErr(s, err)
			s.Astronomy = nil
			s.Data = nil
		})
		return st, err
	}

	snap, fErr := v.fetcher.ForDate(ctx, location, date)
	if fErr != nil {
		observability.LoggerFrom(ctx).Debug("forecast after astronomy failed",
			zap.String("location", location), zap.Error(fErr))
	}
	st := v.settle(ctx, seq, func(s *ViewState) {
		s.Astronomy = &astro
		s.LocationDenied = false
		if fErr != nil {
			s.Data = nil
			return
		}
		f := DecorateForecast(snap, date)
		s.Data = &f
	})
	return st, nil
}
