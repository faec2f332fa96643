package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match usage across the
// client, layers, service, cache and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/layers/{name}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/layers/{name}").Observe(0.01)
	FeedCallsTotal.WithLabelValues("earthquakes", "success").Inc()
	FeedDuration.WithLabelValues("faultlines", "error").Observe(0.5)
	FeedRetriesTotal.WithLabelValues("earthquakes").Inc()
	CacheHitsTotal.WithLabelValues("earthquakes").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	StaleCacheServesTotal.WithLabelValues("faultlines").Inc()
	CoalescedRequestsTotal.WithLabelValues("earthquakes").Inc()
	LayerLoadFailuresTotal.WithLabelValues("Earthquakes", "timeout").Inc()
	FeaturesSkippedTotal.WithLabelValues("Earthquakes").Inc()
}

// TestRecordLayerLoad verifies the result label and the feature gauge.
func TestRecordLayerLoad(t *testing.T) {
	RecordLayerLoad("test-layer", 0)
	RecordLayerLoad("test-layer", 42)

	if got := testutil.ToFloat64(LayerLoadsTotal.WithLabelValues("test-layer", "empty")); got != 1 {
		t.Errorf("empty loads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LayerLoadsTotal.WithLabelValues("test-layer", "populated")); got != 1 {
		t.Errorf("populated loads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LayerFeatures.WithLabelValues("test-layer")); got != 42 {
		t.Errorf("layerFeatures = %v, want 42", got)
	}
}

// TestRecordCircuitBreakerTransition verifies that the state gauge follows transitions.
func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("test-feed", "closed", "open", 1)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test-feed")); got != 1 {
		t.Errorf("circuitBreakerState = %v, want 1", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// the text exposition format.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
