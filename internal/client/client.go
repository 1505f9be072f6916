package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
)

// WeatherClient is the weather/astronomy API used by the service layer.
// A zero date means "today at the location".
type WeatherClient interface {
	Forecast(ctx context.Context, q string, date time.Time) (models.WeatherSnapshot, error)
	Astronomy(ctx context.Context, q string, date time.Time) (models.AstronomySnapshot, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrDataUnavailable  = errors.New("data unavailable for date")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("weather API circuit open")
)

// ParseError reports a weather API response that did not match the expected
// schema. Field names the missing or malformed JSON path.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse response field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parse response: missing field %q", e.Field)
}

func (e *ParseError) Unwrap() error { return e.Err }

// weatherapi.com error code for an unresolvable q parameter.
const apiCodeNoMatchingLocation = 1006

const (
	endpointForecast  = "forecast"
	endpointAstronomy = "astronomy"
)

// Config configures WeatherAPIClient. RetryAttempts <= 1 disables retries.
type Config struct {
	APIKey                  string
	BaseURL                 string
	Lang                    string
	Timeout                 time.Duration
	RetryAttempts           int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
}

// WeatherAPIClient calls the weatherapi.com forecast and astronomy endpoints.
type WeatherAPIClient struct {
	apiKey         string
	baseURL        string
	lang           string
	timeout        time.Duration
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker[[]byte]
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// New validates cfg and returns a client.
func New(cfg Config) (*WeatherAPIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(cfg.APIKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.Lang == "" {
		cfg.Lang = "pt"
	}
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	threshold := uint32(cfg.BreakerFailureThreshold)
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "weather_api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller mistakes (unknown city, date out of range) must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrLocationNotFound) ||
				errors.Is(err, ErrDataUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	})

	return &WeatherAPIClient{
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		lang:           cfg.Lang,
		timeout:        cfg.Timeout,
		client:         &http.Client{Timeout: cfg.Timeout},
		breaker:        breaker,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
	}, nil
}

// BreakerState reports the circuit breaker state (closed, half-open, open).
func (c *WeatherAPIClient) BreakerState() string {
	return c.breaker.State().String()
}

// Forecast fetches current conditions and one forecast day for q.
func (c *WeatherAPIClient) Forecast(ctx context.Context, q string, date time.Time) (models.WeatherSnapshot, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("days", "1")
	params.Set("aqi", "no")
	params.Set("alerts", "no")
	params.Set("lang", c.lang)
	if !date.IsZero() {
		params.Set("dt", date.Format(time.DateOnly))
	}

	body, err := c.get(ctx, endpointForecast, params, !date.IsZero())
	if err != nil {
		return models.WeatherSnapshot{}, err
	}
	return decodeForecast(body)
}

// Astronomy fetches sun and moon data for q on date.
func (c *WeatherAPIClient) Astronomy(ctx context.Context, q string, date time.Time) (models.AstronomySnapshot, error) {
	if date.IsZero() {
		date = time.Now()
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("dt", date.Format(time.DateOnly))

	body, err := c.get(ctx, endpointAstronomy, params, true)
	if err != nil {
		return models.AstronomySnapshot{}, err
	}
	snap, err := decodeAstronomy(body)
	if err != nil {
		return models.AstronomySnapshot{}, err
	}
	snap.Date = date.Format(time.DateOnly)
	return snap, nil
}

// get runs one logical request through the breaker, retrying transient
// failures when retries are configured.
func (c *WeatherAPIClient) get(ctx context.Context, endpoint string, params url.Values, dated bool) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.callAPI(ctx, endpoint, params, dated)
		})
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	if c.retryAttempts > 1 {
		return nil, fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return nil, lastErr
}

func (c *WeatherAPIClient) callAPI(ctx context.Context, endpoint string, params url.Values, dated bool) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if err := handleErrorResponse(resp.StatusCode, body, dated); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + endpoint + ".json")
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// handleErrorResponse maps a non-2xx status to a sentinel error. Client
// errors mean "no such location" for undated queries and "no data for that
// date" for dated ones, unless the API says the location itself is unknown.
func handleErrorResponse(statusCode int, body []byte, dated bool) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiErrorBody
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error.Message

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d %s", ErrInvalidAPIKey, statusCode, msg)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, statusCode)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	case dated && apiErr.Error.Code != apiCodeNoMatchingLocation:
		return fmt.Errorf("%w: HTTP %d %s", ErrDataUnavailable, statusCode, msg)
	default:
		return fmt.Errorf("%w: HTTP %d %s", ErrLocationNotFound, statusCode, msg)
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrCircuitOpen)
}

func (c *WeatherAPIClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if c.retryMaxDelay > 0 && delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

// ValidateAPIKey issues a cheap astronomy query to confirm the key works.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("q", "London")
	params.Set("dt", time.Now().Format(time.DateOnly))
	req, err := c.buildRequest(ctx, endpointAstronomy, params)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: API key is invalid or disabled", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string. The API has reported
// moon_illumination both ways.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexInt(math.Round(v))
	return nil
}
