package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/lunar-fishing-service/internal/auth"
	"github.com/kjstillabower/lunar-fishing-service/internal/client"
	"github.com/kjstillabower/lunar-fishing-service/internal/lifecycle"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
	"github.com/kjstillabower/lunar-fishing-service/internal/service"
	"github.com/kjstillabower/lunar-fishing-service/internal/storage"
	"github.com/kjstillabower/lunar-fishing-service/internal/traffic"
	"github.com/kjstillabower/lunar-fishing-service/internal/validation"
)

// HealthConfig holds thresholds and dependency pings for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// DatabasePing, when set, is called on every health check.
	DatabasePing func(ctx context.Context) error
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// BreakerState, when set, reports the weather API circuit breaker state.
	BreakerState func() string
}

// CookieConfig controls the session and visitor cookies.
type CookieConfig struct {
	Secure bool
}

// Deps are the services the handlers call.
type Deps struct {
	Views           *service.ViewRegistry
	Catches         *service.CatchService
	Auth            *auth.Service
	Bucket          storage.Bucket
	Traffic         *traffic.Tracker
	Health          *HealthConfig
	Cookies         CookieConfig
	DefaultLocation string
	MaxUploadBytes  int64
	Logger          *zap.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	views           *service.ViewRegistry
	catches         *service.CatchService
	auth            *auth.Service
	bucket          storage.Bucket
	traffic         *traffic.Tracker
	healthConfig    *HealthConfig
	cookies         CookieConfig
	defaultLocation string
	maxUploadBytes  int64
	logger          *zap.Logger
	now             func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		views:           d.Views,
		catches:         d.Catches,
		auth:            d.Auth,
		bucket:          d.Bucket,
		traffic:         d.Traffic,
		healthConfig:    d.Health,
		cookies:         d.Cookies,
		defaultLocation: d.DefaultLocation,
		maxUploadBytes:  d.MaxUploadBytes,
		logger:          d.Logger,
		now:             time.Now,
	}
	if h.traffic == nil {
		h.traffic = traffic.NewTracker()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.defaultLocation == "" {
		h.defaultLocation = service.DefaultLocation
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 5 << 20
	}
	return h
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "lunar-fishing-service",
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > database down > breaker open > error rate > healthy.
// Cache reachability is reported but does not change the status.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{}
	cfg := h.healthConfig
	if cfg == nil {
		cfg = &HealthConfig{}
	}

	if cfg.CachePing != nil {
		checks["cache"] = healthy(cfg.CachePing() == nil)
	}
	dbOK := true
	if cfg.DatabasePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		dbOK = cfg.DatabasePing(pingCtx) == nil
		cancel()
		checks["database"] = healthy(dbOK)
	}
	breakerOpen := cfg.BreakerState != nil && cfg.BreakerState() == "open"
	errorBreach := h.traffic.Degraded(cfg.DegradedWindow, cfg.DegradedErrorPct)
	checks["weatherApi"] = healthy(!breakerOpen && !errorBreach)

	switch st := lifecycle.CurrentStatus(); {
	case st == lifecycle.ShuttingDown:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	case st == lifecycle.Starting:
		return healthResult{"starting", http.StatusServiceUnavailable, "not_ready", checks}
	case !dbOK:
		return healthResult{"degraded", http.StatusServiceUnavailable, "database_unreachable", checks}
	case breakerOpen:
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open", checks}
	case errorBreach:
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

func healthy(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// recordUpstream feeds the degraded tracker. Caller mistakes (unknown city,
// date out of range) count as successful upstream calls.
func (h *Handler) recordUpstream(err error) {
	switch {
	case err == nil,
		errors.Is(err, client.ErrLocationNotFound),
		errors.Is(err, client.ErrDataUnavailable):
		h.traffic.RecordSuccess()
	case errors.Is(err, context.Canceled):
	default:
		h.traffic.RecordError()
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a service error to its status and error code.
// The underlying error is logged at DEBUG, or ERROR for 5xx responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyError(err)
	writeError(w, r, status, code, message)

	logger := observability.LoggerFrom(r.Context())
	if status >= http.StatusInternalServerError && code != "UPSTREAM_UNAVAILABLE" {
		logger.Error("request failed", zap.String("code", code), zap.Error(err))
		return
	}
	logger.Debug("request failed", zap.String("code", code), zap.Error(err))
}

func classifyError(err error) (status int, code, message string) {
	var parseErr *client.ParseError
	switch {
	case errors.Is(err, validation.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, validation.ErrLocationEmpty),
		errors.Is(err, validation.ErrLocationTooShort),
		errors.Is(err, validation.ErrLocationTooLong),
		errors.Is(err, validation.ErrLocationInvalidChars):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "UNAUTHORIZED", err.Error()
	case errors.Is(err, auth.ErrAccountExists):
		return http.StatusConflict, "ACCOUNT_EXISTS", err.Error()
	case errors.Is(err, client.ErrLocationNotFound):
		return http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found"
	case errors.Is(err, client.ErrDataUnavailable):
		return http.StatusNotFound, "DATA_UNAVAILABLE", "No forecast data for the requested date"
	case errors.Is(err, service.ErrUpload):
		switch {
		case errors.Is(err, storage.ErrTooLarge):
			return http.StatusRequestEntityTooLarge, "UPLOAD_FAILED", err.Error()
		case errors.Is(err, storage.ErrNotImage), errors.Is(err, storage.ErrInvalidKey):
			return http.StatusBadRequest, "UPLOAD_FAILED", err.Error()
		}
		return http.StatusInternalServerError, "UPLOAD_FAILED", "Unable to store photo"
	case errors.Is(err, service.ErrInsert):
		return http.StatusInternalServerError, "INSERT_FAILED", "Unable to save catch"
	case errors.Is(err, service.ErrQuery):
		return http.StatusInternalServerError, "QUERY_FAILED", "Unable to load catches"
	case errors.Is(err, service.ErrDelete):
		return http.StatusInternalServerError, "DELETE_FAILED", "Unable to delete catch"
	case errors.Is(err, service.ErrCatchNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Catch not found"
	case errors.Is(err, client.ErrCircuitOpen),
		errors.Is(err, client.ErrUpstreamFailure),
		errors.Is(err, client.ErrRateLimited),
		errors.Is(err, client.ErrInvalidAPIKey),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &parseErr):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data"
	}
	return http.StatusInternalServerError, "INTERNAL", "Internal error"
}
