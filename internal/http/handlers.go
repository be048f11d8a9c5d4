package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/location-weather/internal/geolocation"
	"github.com/kjstillabower/location-weather/internal/models"
	"github.com/kjstillabower/location-weather/internal/observability"
	"github.com/kjstillabower/location-weather/internal/service"
	"github.com/kjstillabower/location-weather/internal/widget"
)

// Pinger checks reachability of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeyValidator confirms the provider still accepts the configured API key.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, probe models.Coordinates) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	refresher        widget.Refresher
	store            Pinger
	keys             KeyValidator
	keyProbe         models.Coordinates
	logger           *zap.Logger
	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. store may be nil, in which case /health
// reports no store check.
func NewHandler(refresher widget.Refresher, store Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		refresher: refresher,
		store:     store,
		logger:    logger,
	}
}

// SetKeyValidator adds an api_key check to /health, probing the provider at probe.
func (h *Handler) SetKeyValidator(v KeyValidator, probe models.Coordinates) {
	h.keys = v
	h.keyProbe = probe
}

// SetShuttingDown flips /health to shutting-down. Call when SIGTERM/SIGINT is received.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

type weatherView struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	Humidity    int       `json:"humidity"`
	Pressure    int       `json:"pressure"`
	WindSpeed   float64   `json:"windSpeed"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	IconURL     string    `json:"iconUrl,omitempty"`
	Source      string    `json:"source"`
	CapturedAt  time.Time `json:"capturedAt"`
}

func newWeatherView(o service.Outcome) weatherView {
	s := o.Snapshot
	return weatherView{
		Location:    s.Location,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Pressure:    s.Pressure,
		WindSpeed:   s.WindSpeed,
		Description: s.Description,
		Icon:        s.Icon,
		IconURL:     s.IconURL(),
		Source:      string(o.Origin),
		CapturedAt:  o.CapturedAt.UTC(),
	}
}

// GetWeather handles GET /weather. A valid stored entry is served when present.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, false)
}

// PostRefresh handles POST /weather/refresh. Always fetches from the provider.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, true)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request, force bool) {
	outcome, err := h.refresher.Refresh(r.Context(), force)
	if err != nil {
		writeRefreshError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWeatherView(outcome))
}

// GetPanel handles GET /weather/panel, the French text rendering of GET /weather.
func (h *Handler) GetPanel(w http.ResponseWriter, r *http.Request) {
	result := widget.FromRefresh(h.refresher.Refresh(r.Context(), false))
	status := http.StatusOK
	if result.State == widget.StateError {
		status, _ = errorStatus(result.Err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if err := widget.Render(w, result); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Debug("panel write failed", zap.Error(err))
	}
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
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down > API key rejected >
// store unreachable > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := make(map[string]string)
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.keys != nil {
		if err := h.keys.ValidateAPIKey(ctx, h.keyProbe); err != nil {
			checks["api_key"] = "invalid"
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid", checks}
		}
		checks["api_key"] = "valid"
	}
	if h.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.store.Ping(pingCtx); err != nil {
			checks["store"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable", checks}
		}
		checks["store"] = "healthy"
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// errorStatus maps a refresh failure to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var posErr *geolocation.PositionError
	var fetchErr *service.FetchError
	switch {
	case errors.As(err, &posErr):
		return http.StatusServiceUnavailable, "POSITION_UNAVAILABLE"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	default:
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
}

// writeRefreshError answers with the user-facing French message and logs the
// underlying cause at DEBUG.
func writeRefreshError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	result := widget.Failed(err)
	writeError(w, r, status, code, result.Message)
	if logger := observability.LoggerFromContext(r.Context(), nil); logger != nil {
		logger.Debug("refresh failed", zap.String("code", code), zap.Error(err))
	}
}
