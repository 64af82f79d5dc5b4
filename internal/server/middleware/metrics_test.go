package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordancj7/folio/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

// folioRouter mounts the public and admin shapes the server exposes.
func folioRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestMetrics)
	r.Use(Recovery)
	r.Post("/api/chat", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"hi"}`))
	})
	r.Post("/api/contact", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	r.Route("/api/admin/messages", func(r chi.Router) {
		r.Get("/", okHandler)
		r.Delete("/{id}", okHandler)
		r.Patch("/{id}", func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})
	})
	return r
}

func lastTags(t *testing.T, collector *telemetrytesting.FakeCollector, name string) map[string]string {
	t.Helper()
	recorded := collector.GetMetricsByName(name)
	require.NotEmpty(t, recorded, "expected %s to be emitted", name)
	return recorded[len(recorded)-1].Tags
}

func TestRequestMetricsLabelsChatRoute(t *testing.T) {
	collector := setupTelemetry(t)

	rec := httptest.NewRecorder()
	folioRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	tags := lastTags(t, collector, "http_requests_total")
	assert.Equal(t, "/api/chat", tags["endpoint"])
	assert.Equal(t, RouteGroupAPI, tags["group"])
	assert.Equal(t, "POST", tags["method"])
	assert.Equal(t, "200", tags["status"])
	assert.Equal(t, 1, collector.CountMetricsByName("http_request_duration_ms"))
	assert.Zero(t, collector.CountMetricsByName("http_errors_total"))

	sizes := collector.GetMetricsByName("http_response_size_bytes")
	require.Len(t, sizes, 1)
	assert.Equal(t, float64(len(`{"reply":"hi"}`)), sizes[0].Value)
}

func TestRequestMetricsUsesPatternForMessageIDs(t *testing.T) {
	collector := setupTelemetry(t)
	router := folioRouter()

	for _, id := range []string{"1", "42", "9001"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/messages/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	recorded := collector.GetMetricsByName("http_requests_total")
	require.Len(t, recorded, 3)
	for _, m := range recorded {
		assert.Equal(t, "/api/admin/messages/{id}", m.Tags["endpoint"])
		assert.Equal(t, RouteGroupAdmin, m.Tags["group"])
	}
}

func TestRequestMetricsCountsQuotaDenialsAsClientErrors(t *testing.T) {
	collector := setupTelemetry(t)

	rec := httptest.NewRecorder()
	folioRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/contact", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	tags := lastTags(t, collector, "http_errors_total")
	assert.Equal(t, "/api/contact", tags["endpoint"])
	assert.Equal(t, "429", tags["status"])
	assert.Equal(t, "client_error", tags["error_type"])
}

func TestRecoveryRecordsPanicAgainstRoutePattern(t *testing.T) {
	collector := setupTelemetry(t)

	rec := httptest.NewRecorder()
	folioRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/admin/messages/7", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.Equal(t, "/api/admin/messages/{id}", lastTags(t, collector, "panics_total")["endpoint"])
	assert.Equal(t, "500", lastTags(t, collector, "http_requests_total")["status"])
}

func TestRequestMetricsWithTelemetryDisabled(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	rec := httptest.NewRecorder()
	folioRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEndpointPatternWithoutRouteMatch(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health/*"},
		{"/health/ready", "/health/*"},
		{"/version", "/version"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/refine", "/api/refine"},
		{"/api/quota", "/api/quota"},
		{"/api/admin/messages/123", "/api/admin/messages/{id}"},
		{"/admin/signal", "/admin/signal"},
		{"/api/users/123", "/unknown"},
		{"/wp-login.php", "/unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.expected, EndpointPattern(req))
		})
	}
}

func TestRouteGroup(t *testing.T) {
	assert.Equal(t, RouteGroupAPI, RouteGroup("/api/chat"))
	assert.Equal(t, RouteGroupAPI, RouteGroup("/api/flows"))
	assert.Equal(t, RouteGroupAdmin, RouteGroup("/api/admin/messages/{id}"))
	assert.Equal(t, RouteGroupAdmin, RouteGroup("/admin/signal"))
	assert.Equal(t, RouteGroupOps, RouteGroup("/health/*"))
	assert.Equal(t, RouteGroupOps, RouteGroup("/unknown"))
}

func TestRequestIDKeepsWellFormedCallerID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set(RequestIDHeader, "trace-abc.123")

	folioRouter().ServeHTTP(rec, req)
	assert.Equal(t, "trace-abc.123", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesUnsafeCallerIDs(t *testing.T) {
	for name, id := range map[string]string{
		"too long":    strings.Repeat("a", MaxRequestIDLength+1),
		"spaces":      "id with spaces",
		"json quotes": `x","admin":"true`,
	} {
		t.Run(name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, id)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.NotEqual(t, id, seen)
			assert.Len(t, seen, 36)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
		})
	}
}
