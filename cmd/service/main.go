package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/lunar-fishing-service/internal/auth"
	"github.com/kjstillabower/lunar-fishing-service/internal/cache"
	"github.com/kjstillabower/lunar-fishing-service/internal/client"
	"github.com/kjstillabower/lunar-fishing-service/internal/config"
	httphandler "github.com/kjstillabower/lunar-fishing-service/internal/http"
	"github.com/kjstillabower/lunar-fishing-service/internal/lifecycle"
	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
	"github.com/kjstillabower/lunar-fishing-service/internal/service"
	"github.com/kjstillabower/lunar-fishing-service/internal/storage"
	"github.com/kjstillabower/lunar-fishing-service/internal/store"
	"github.com/kjstillabower/lunar-fishing-service/internal/traffic"
)

const sessionPurgeInterval = time.Hour

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.New(client.Config{
		APIKey:                  cfg.WeatherAPIKey,
		BaseURL:                 cfg.WeatherAPIURL,
		Lang:                    cfg.WeatherLang,
		Timeout:                 cfg.WeatherAPITimeout,
		RetryAttempts:           cfg.RetryAttempts,
		RetryBaseDelay:          cfg.RetryBaseDelay,
		RetryMaxDelay:           cfg.RetryMaxDelay,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerTimeout:          cfg.BreakerTimeout,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	caches, err := newCaches(cfg)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))
	weatherService := service.NewWeatherService(weatherClient, caches.forecasts, caches.astronomy, cfg.CacheTTL)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := openStore(startCtx, cfg)
	startCancel()
	if err != nil {
		logger.Fatal("database", zap.Error(err), zap.String("driver", cfg.DatabaseDriver))
	}
	logger.Info("database opened", zap.String("driver", cfg.DatabaseDriver))

	bucketCtx, bucketCancel := context.WithTimeout(context.Background(), 10*time.Second)
	bucket, err := newBucket(bucketCtx, cfg)
	bucketCancel()
	if err != nil {
		logger.Fatal("photo storage", zap.Error(err), zap.String("backend", cfg.StorageBackend))
	}
	logger.Info("photo storage", zap.String("backend", cfg.StorageBackend))

	authService := auth.NewService(db, cfg.SessionTTL, cfg.BcryptCost)
	tracker := traffic.NewTracker()
	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		DatabasePing:     db.Ping,
		BreakerState:     weatherClient.BreakerState,
	}
	if caches.memcached != nil {
		healthConfig.CachePing = caches.memcached.Ping
	}

	handler := httphandler.NewHandler(httphandler.Deps{
		Views:           service.NewViewRegistry(weatherService, cfg.DefaultLocation, cfg.ViewRegistryMax),
		Catches:         service.NewCatchService(db, bucket),
		Auth:            authService,
		Bucket:          bucket,
		Traffic:         tracker,
		Health:          healthConfig,
		Cookies:         httphandler.CookieConfig{Secure: cfg.CookieSecure},
		DefaultLocation: cfg.DefaultLocation,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		Logger:          logger,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}
	if caches.enabled() && len(cfg.TrackedLocations) > 0 {
		startWarming(bgCtx, logger, weatherService, cfg)
	}
	go purgeSessions(bgCtx, logger, authService, sessionPurgeInterval)

	keyCtx, keyCancel := context.WithTimeout(context.Background(), cfg.WeatherAPITimeout)
	if err := weatherClient.ValidateAPIKey(keyCtx); err != nil {
		logger.Warn("weather API key check failed", zap.Error(err))
	}
	keyCancel()

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		lifecycle.MarkReady()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetStatus(lifecycle.ShuttingDown)
	bgCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := db.Close(); err != nil {
		logger.Error("database close", zap.Error(err))
	}
	if caches.memcached != nil {
		if err := caches.memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// weatherCaches are the snapshot caches for the configured backend. Both
// are nil when caching is off.
type weatherCaches struct {
	forecasts cache.Cache[models.WeatherSnapshot]
	astronomy cache.Cache[models.AstronomySnapshot]
	memcached *memcache.Client
}

func (c weatherCaches) enabled() bool { return c.forecasts != nil }

func newCaches(cfg *config.Config) (weatherCaches, error) {
	switch cfg.CacheBackend {
	case config.CacheNone, "":
		return weatherCaches{}, nil
	case config.CacheInMemory:
		return weatherCaches{
			forecasts: cache.NewInMemoryCache[models.WeatherSnapshot](),
			astronomy: cache.NewInMemoryCache[models.AstronomySnapshot](),
		}, nil
	case config.CacheMemcached:
		mc := cache.NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		return weatherCaches{
			forecasts: cache.NewMemcachedCache[models.WeatherSnapshot](mc, "forecast:"),
			astronomy: cache.NewMemcachedCache[models.AstronomySnapshot](mc, "astronomy:"),
			memcached: mc,
		}, nil
	}
	return weatherCaches{}, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	case config.DriverSQLite, "":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		return store.OpenSQLite(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
}

func newBucket(ctx context.Context, cfg *config.Config) (storage.Bucket, error) {
	switch cfg.StorageBackend {
	case config.StorageFS, "":
		return storage.NewFSBucket(cfg.StorageDir, cfg.StorageBaseURL, cfg.MaxUploadBytes)
	case config.StorageS3:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.S3Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			}
			o.UsePathStyle = cfg.S3UsePathStyle
		})
		return storage.NewS3Bucket(client, storage.S3Config{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			BaseURL:  cfg.StorageBaseURL,
			MaxBytes: cfg.MaxUploadBytes,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// startWarming prefetches the tracked locations once, or periodically when
// an interval is configured. The periodic warmer's first pass is immediate.
func startWarming(ctx context.Context, logger *zap.Logger, fetcher cache.ForecastFetcher, cfg *config.Config) {
	warmer := cache.NewCacheWarmer(fetcher, logger)
	if cfg.WarmInterval <= 0 {
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		defer warmCancel()
		if err := warmer.Warm(warmCtx, cfg.TrackedLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		return
	}
	go func() {
		if err := warmer.WarmPeriodic(ctx, cfg.TrackedLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("periodic cache warming stopped", zap.Error(err))
		}
	}()
}

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func purgeSessions(ctx context.Context, logger *zap.Logger, p sessionPurger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}
