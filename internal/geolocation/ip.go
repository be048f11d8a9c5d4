package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kjstillabower/location-weather/internal/models"
)

// DefaultIPLookupURL is an ip-api.com compatible endpoint.
const DefaultIPLookupURL = "http://ip-api.com/json"

// IPLocator resolves the host position from its public IP address.
type IPLocator struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewIPLocator returns a locator querying lookupURL. An empty URL uses
// DefaultIPLookupURL; a zero timeout falls back to 5s.
func NewIPLocator(lookupURL string, timeout time.Duration) *IPLocator {
	if lookupURL == "" {
		lookupURL = DefaultIPLookupURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IPLocator{
		url:     lookupURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// CurrentPosition performs one lookup. 401/403 map to permission denied,
// status "fail" and other non-2xx to position unavailable, deadlines to timeout.
func (l *IPLocator) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	reqCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, l.url, nil)
	if err != nil {
		return models.Coordinates{}, &PositionError{Kind: KindPositionUnavailable, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return models.Coordinates{}, &PositionError{Kind: KindTimeout, Err: err}
		}
		return models.Coordinates{}, &PositionError{Kind: KindPositionUnavailable, Err: fmt.Errorf("lookup request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.Coordinates{}, &PositionError{Kind: KindPermissionDenied, Err: fmt.Errorf("lookup: HTTP %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return models.Coordinates{}, &PositionError{Kind: KindPositionUnavailable, Err: fmt.Errorf("lookup: HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Coordinates{}, &PositionError{Kind: KindPositionUnavailable, Err: fmt.Errorf("read response body: %w", err)}
	}
	var out ipLookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return models.Coordinates{}, &PositionError{Kind: KindPositionUnavailable, Err: fmt.Errorf("parse response: %w", err)}
	}
	if out.Status != "" && out.Status != "success" {
		return models.Coordinates{}, &PositionError{Kind: KindPositionUnavailable, Err: fmt.Errorf("lookup failed: %s", out.Message)}
	}
	return models.Coordinates{Latitude: out.Lat, Longitude: out.Lon}, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
