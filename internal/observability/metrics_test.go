package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match usage across the client, cache,
// dispatch and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/v1/dispatch", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/v1/dispatch").Observe(0.01)
	DispatchRequestsTotal.WithLabelValues("true").Inc()
	CapabilityResultsTotal.WithLabelValues("soil", "success", "primary", "").Inc()
	CapabilityResultsTotal.WithLabelValues("weather", "failed", "", "Timeout").Inc()
	CapabilityDuration.WithLabelValues("weather").Observe(0.2)
	CapabilityRetriesTotal.WithLabelValues("soil").Inc()
	BackendCallsTotal.WithLabelValues("soil", "success").Inc()
	BackendDuration.WithLabelValues("soil", "success").Observe(0.1)
	BackendErrorsTotal.WithLabelValues("soil", "timeout").Inc()
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheMissesTotal.WithLabelValues("weather").Inc()
	CacheStaleServesTotal.WithLabelValues("soil").Inc()
	CacheErrorsTotal.WithLabelValues("get", "connection").Inc()
	CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(0.001)
	CacheCoalescedTotal.WithLabelValues("weather").Inc()
	LocationResolutionsTotal.WithLabelValues("geoip", "success").Inc()
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("test_component", "closed", "open")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test_component")); got != 1 {
		t.Errorf("circuitBreakerState = %v, want 1", got)
	}
	RecordCircuitBreakerTransition("test_component", "open", "half-open")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test_component")); got != 2 {
		t.Errorf("circuitBreakerState = %v, want 2", got)
	}
	RecordCircuitBreakerTransition("test_component", "half-open", "closed")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test_component")); got != 0 {
		t.Errorf("circuitBreakerState = %v, want 0", got)
	}
}

func TestSetModelLoaded(t *testing.T) {
	SetModelLoaded(false)
	if got := testutil.ToFloat64(ModelLoaded); got != 0 {
		t.Errorf("cropModelLoaded = %v, want 0", got)
	}
	SetModelLoaded(true)
	if got := testutil.ToFloat64(ModelLoaded); got != 1 {
		t.Errorf("cropModelLoaded = %v, want 1", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
