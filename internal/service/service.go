package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/lunar-fishing-service/internal/cache"
	"github.com/kjstillabower/lunar-fishing-service/internal/client"
	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
)

// WeatherService fetches forecasts and astronomy data with an optional
// cache-aside layer. Identical concurrent upstream calls share one request.
type WeatherService struct {
	client    client.WeatherClient
	forecasts cache.Cache[models.WeatherSnapshot]   // nil disables caching
	astronomy cache.Cache[models.AstronomySnapshot] // nil disables caching
	ttl       time.Duration
	group     singleflight.Group
	now       func() time.Time
}

// NewWeatherService wires the client and caches. Pass nil caches (or ttl 0)
// to re-fetch on every query.
func NewWeatherService(
	c client.WeatherClient,
	forecasts cache.Cache[models.WeatherSnapshot],
	astronomy cache.Cache[models.AstronomySnapshot],
	ttl time.Duration,
) *WeatherService {
	if ttl <= 0 {
		forecasts, astronomy = nil, nil
	}
	return &WeatherService{client: c, forecasts: forecasts, astronomy: astronomy, ttl: ttl, now: time.Now}
}

// Current returns today's forecast for q (a city name or "lat,lon").
func (s *WeatherService) Current(ctx context.Context, q string) (models.WeatherSnapshot, error) {
	return s.Forecast(ctx, q, time.Time{})
}

// ForDate returns the forecast for q on the calendar date of date.
func (s *WeatherService) ForDate(ctx context.Context, q string, date time.Time) (models.WeatherSnapshot, error) {
	return s.Forecast(ctx, q, date)
}

// Forecast is the shared entry point for Current and ForDate. A zero date
// means today.
func (s *WeatherService) Forecast(ctx context.Context, q string, date time.Time) (models.WeatherSnapshot, error) {
	key := cacheKey(q, date, s.now())
	snap, err := cachedFetch(ctx, s, s.forecasts, "forecast", key, func(ctx context.Context) (models.WeatherSnapshot, error) {
		return s.client.Forecast(ctx, strings.TrimSpace(q), date)
	})
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("fetch forecast for %s: %w", q, err)
	}
	return snap, nil
}

// AstronomyForDate returns sun and moon data for q on date.
func (s *WeatherService) AstronomyForDate(ctx context.Context, q string, date time.Time) (models.AstronomySnapshot, error) {
	if date.IsZero() {
		date = s.now()
	}
	key := cacheKey(q, date, date)
	snap, err := cachedFetch(ctx, s, s.astronomy, "astronomy", key, func(ctx context.Context) (models.AstronomySnapshot, error) {
		return s.client.Astronomy(ctx, strings.TrimSpace(q), date)
	})
	if err != nil {
		return models.AstronomySnapshot{}, fmt.Errorf("fetch astronomy for %s: %w", q, err)
	}
	return snap, nil
}

// cachedFetch reads c, and on a miss runs fetch through the singleflight
// group. The shared upstream call is detached from the first caller's
// cancellation so one aborted request cannot fail the others; each caller
// still stops waiting when its own ctx ends.
func cachedFetch[T any](
	ctx context.Context,
	s *WeatherService,
	c cache.Cache[T],
	cacheType, key string,
	fetch func(context.Context) (T, error),
) (T, error) {
	var zero T
	logger := observability.LoggerFrom(ctx)

	if c != nil {
		cached, ok, err := c.Get(ctx, key)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues(cacheType).Inc()
			logger.Debug("cache hit", zap.String("key", key))
			return cached, nil
		}
	}

	flightKey := cacheType + ":" + key
	ch := s.group.DoChan(flightKey, func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		if c != nil {
			if setErr := c.Set(context.WithoutCancel(ctx), key, v, s.ttl); setErr != nil {
				observability.CacheErrorsTotal.WithLabelValues("set").Inc()
				logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
			}
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			observability.CoalescedRequestsTotal.Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// cacheKey is the normalized location plus the calendar date. Undated
// queries are keyed "current@" + today, so they stay apart from a dated
// query for the same day and roll over at midnight.
func cacheKey(q string, date, today time.Time) string {
	if date.IsZero() {
		return normalizeLocation(q) + "|current@" + today.Format(time.DateOnly)
	}
	return normalizeLocation(q) + "|" + date.Format(time.DateOnly)
}

// normalizeLocation trims whitespace and lowercases so equivalent queries
// share a cache entry.
func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
