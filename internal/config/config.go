package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheNone      = "none"
	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
)

// Photo storage backends.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherLang       string
	DefaultLocation   string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	BreakerFailureThreshold int
	BreakerTimeout          time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	DatabaseDriver   string
	DatabaseURL      string
	SQLitePath       string
	DatabaseMaxConns int32

	StorageBackend string
	StorageDir     string
	StorageBaseURL string
	MaxUploadBytes int64
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool

	SessionTTL   time.Duration
	CookieSecure bool
	BcryptCost   int

	ViewRegistryMax int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	TrackedLocations []string
	WarmInterval     time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL             string `yaml:"url"`
		Timeout         string `yaml:"timeout"`
		Lang            string `yaml:"lang"`
		DefaultLocation string `yaml:"default_location"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerTimeout          string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Database struct {
		Driver   string `yaml:"driver"`
		URL      string `yaml:"url"`
		Path     string `yaml:"path"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`

	Storage struct {
		Backend        string `yaml:"backend"`
		Dir            string `yaml:"dir"`
		BaseURL        string `yaml:"base_url"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
		S3             struct {
			Bucket       string `yaml:"bucket"`
			Prefix       string `yaml:"prefix"`
			Region       string `yaml:"region"`
			Endpoint     string `yaml:"endpoint"`
			UsePathStyle bool   `yaml:"use_path_style"`
		} `yaml:"s3"`
	} `yaml:"storage"`

	Auth struct {
		SessionTTL   string `yaml:"session_ttl"`
		CookieSecure bool   `yaml:"cookie_secure"`
		BcryptCost   int    `yaml:"bcrypt_cost"`
	} `yaml:"auth"`

	Views struct {
		Max int `yaml:"max"`
	} `yaml:"views"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
		WarmInterval     string   `yaml:"warm_interval"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	DatabaseURL   string `yaml:"database_url"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory, when present, is loaded into the
// environment first; variables already set win. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, "https://api.weatherapi.com/v1")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.WeatherLang = firstNonEmpty(fc.WeatherAPI.Lang, "pt")
	cfg.DefaultLocation = firstNonEmpty(fc.WeatherAPI.DefaultLocation, "Sao Paulo")

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, CacheNone)))
	cfg.CacheTTL = parseDurationOrZero(fc.Cache.TTL, 5*time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.DatabaseDriver = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("DATABASE_DRIVER"), fc.Database.Driver, DriverSQLite)))
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL, fc.Database.URL)
	cfg.SQLitePath = firstNonEmpty(os.Getenv("SQLITE_PATH"), fc.Database.Path, "data/lunar.db")
	cfg.DatabaseMaxConns = fc.Database.MaxConns
	if cfg.DatabaseMaxConns <= 0 {
		cfg.DatabaseMaxConns = 10
	}

	cfg.StorageBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("STORAGE_BACKEND"), fc.Storage.Backend, StorageFS)))
	cfg.StorageDir = firstNonEmpty(os.Getenv("STORAGE_DIR"), fc.Storage.Dir, "data/photos")
	cfg.StorageBaseURL = strings.TrimRight(firstNonEmpty(fc.Storage.BaseURL, "/photos"), "/")
	cfg.MaxUploadBytes = fc.Storage.MaxUploadBytes
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	cfg.S3Bucket = strings.TrimSpace(firstNonEmpty(os.Getenv("S3_BUCKET"), fc.Storage.S3.Bucket))
	cfg.S3Prefix = fc.Storage.S3.Prefix
	cfg.S3Region = firstNonEmpty(os.Getenv("AWS_REGION"), fc.Storage.S3.Region)
	cfg.S3Endpoint = firstNonEmpty(os.Getenv("S3_ENDPOINT"), fc.Storage.S3.Endpoint)
	cfg.S3UsePathStyle = fc.Storage.S3.UsePathStyle

	cfg.SessionTTL = parseDuration(fc.Auth.SessionTTL, 7*24*time.Hour)
	cfg.CookieSecure = fc.Auth.CookieSecure
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("COOKIE_SECURE: %w", err)
		}
		cfg.CookieSecure = b
	}
	cfg.BcryptCost = fc.Auth.BcryptCost

	cfg.ViewRegistryMax = fc.Views.Max
	if cfg.ViewRegistryMax <= 0 {
		cfg.ViewRegistryMax = 10000
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.TrackedLocations = fc.Metrics.TrackedLocations
	cfg.WarmInterval = parseDurationOrZero(fc.Metrics.WarmInterval, 0)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case CacheNone, CacheInMemory, CacheMemcached:
	default:
		return fmt.Errorf("cache.backend must be none, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.StorageBackend {
	case StorageFS:
	case StorageS3:
		if cfg.S3Bucket == "" {
			return fmt.Errorf("storage.s3.bucket required for storage.backend s3")
		}
	default:
		return fmt.Errorf("storage.backend must be fs or s3, got %q", cfg.StorageBackend)
	}
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL required for database.driver postgres")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.DatabaseDriver)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
