package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
)

// ForecastFetcher is implemented by the service layer. Fetching through it
// populates the forecast cache.
type ForecastFetcher interface {
	Forecast(ctx context.Context, q string, date time.Time) (models.WeatherSnapshot, error)
}

// maxConcurrentWarm bounds upstream calls during a warm run.
const maxConcurrentWarm = 4

// CacheWarmer prefetches today's forecast for a list of locations.
type CacheWarmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
}

func NewCacheWarmer(fetcher ForecastFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every location and returns the joined failures. One failing
// location does not stop the others.
func (w *CacheWarmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	errs := make([]error, len(locations))
	var g errgroup.Group
	g.SetLimit(maxConcurrentWarm)
	for i, loc := range locations {
		g.Go(func() error {
			if _, err := w.fetcher.Forecast(ctx, loc, time.Time{}); err != nil {
				errs[i] = fmt.Errorf("warm %s: %w", loc, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", failed),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", err)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []string, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
