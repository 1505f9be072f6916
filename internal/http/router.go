package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
)

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting of weather routes
	RequestTimeout time.Duration
}

// NewRouter wires every route of the service onto a mux router.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/photos/{key:.+}", h.GetPhoto).Methods(http.MethodGet, http.MethodHead)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(SessionMiddleware(h.auth))
	api.HandleFunc("/moon", h.GetMoon).Methods(http.MethodGet)
	api.HandleFunc("/moon/calendar", h.GetMoonCalendar).Methods(http.MethodGet)
	api.HandleFunc("/forecast/classify", h.GetClassification).Methods(http.MethodGet)

	weather := api.PathPrefix("/weather").Subrouter()
	weather.Use(VisitorMiddleware(h.cookies.Secure))
	weather.Use(RateLimitMiddleware(opts.Limiter, h.traffic))
	weather.Use(TimeoutMiddleware(timeout))
	weather.HandleFunc("/current", h.GetWeatherCurrent).Methods(http.MethodGet)
	weather.HandleFunc("/city", h.GetWeatherCity).Methods(http.MethodGet)
	weather.HandleFunc("/date", h.GetWeatherDate).Methods(http.MethodGet)
	weather.HandleFunc("/astronomy", h.GetWeatherAstronomy).Methods(http.MethodGet)
	weather.HandleFunc("/state", h.GetWeatherState).Methods(http.MethodGet)

	api.HandleFunc("/auth/signup", h.PostSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", h.PostSignIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", h.PostSignOut).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.GetMe).Methods(http.MethodGet)
	api.HandleFunc("/wall", h.GetWall).Methods(http.MethodGet)

	api.Handle("/catches", RequireAuth(http.HandlerFunc(h.GetCatches))).Methods(http.MethodGet)
	api.Handle("/catches", RequireAuth(http.HandlerFunc(h.PostCatch))).Methods(http.MethodPost)
	api.Handle("/catches/{id:[0-9]+}", RequireAuth(http.HandlerFunc(h.DeleteCatch))).Methods(http.MethodDelete)

	return router
}
