package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that every metric accepts the label values used by
// the client, service, cache and http packages without panicking.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/weather").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPIDuration.WithLabelValues("server_error").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("upstream").Inc()
	RefreshesTotal.WithLabelValues("cached", "cache").Inc()
	RefreshesTotal.WithLabelValues("forced", "fetch_error").Inc()
	RefreshCoalescedTotal.WithLabelValues("forced").Inc()
	CacheHitsTotal.Inc()
	CacheMissesTotal.WithLabelValues("corrupt").Inc()
	CacheEntryAgeSeconds.Observe(300)
	CacheErrorsTotal.WithLabelValues("set").Inc()
	CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(0.001)
	PositionErrorsTotal.WithLabelValues("permission_denied").Inc()
	RecordCircuitBreakerTransition("weather_api", "closed", "open", 1)
	RegisterStoreInfo("in_memory")
	RegisterStoreInfo("sqlite")
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// the Prometheus text exposition format.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	RefreshesTotal.WithLabelValues("cached", "api").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "refreshesTotal") {
		t.Error("MetricsHandler response should contain refreshesTotal")
	}
}
