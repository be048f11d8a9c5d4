package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/location-weather/internal/observability"
)

// RouterConfig holds the middleware settings for NewRouter.
type RouterConfig struct {
	RequestTimeout time.Duration
	// Limiter rate-limits /weather routes. Nil disables rate limiting.
	Limiter *rate.Limiter
	// InFlight, when set, counts requests for graceful shutdown.
	InFlight *InFlightTracker
}

// NewRouter registers the weather, health and metrics routes.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	if cfg.InFlight != nil {
		router.Use(cfg.InFlight.Middleware)
	}
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(cfg.Limiter))
	weatherRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	weatherRouter.HandleFunc("", h.GetWeather).Methods("GET")
	weatherRouter.HandleFunc("/refresh", h.PostRefresh).Methods("POST")
	weatherRouter.HandleFunc("/panel", h.GetPanel).Methods("GET")
	return router
}
