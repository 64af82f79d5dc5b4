package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordancj7/folio/internal/core/engine"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestAdminAuth(t *testing.T) {
	handler := AdminAuth("s3cret")(http.HandlerFunc(okHandler))

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "missing", target: "/admin", want: http.StatusUnauthorized},
		{name: "wrong bearer", target: "/admin", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bearer", target: "/admin", header: "Bearer s3cret", want: http.StatusNoContent},
		{name: "lowercase scheme", target: "/admin", header: "bearer s3cret", want: http.StatusNoContent},
		{name: "query", target: "/admin?token=s3cret", want: http.StatusNoContent},
		{name: "basic scheme", target: "/admin", header: "Basic s3cret", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAdminAuthDisabledWithoutToken(t *testing.T) {
	handler := AdminAuth("  ")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/admin?token=", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
}

func TestCallerKeyStrategies(t *testing.T) {
	var seen string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCallerKey(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "203.0.113.7:5555"

	CallerKey(engine.KeyStrategyGlobal, nil)(capture).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, engine.GlobalKey, seen)

	CallerKey(engine.KeyStrategyIP, nil)(capture).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "ip:203.0.113.7", seen)
}

func TestCallerKeyIgnoresForwardingHeadersFromUntrustedPeers(t *testing.T) {
	var seen []string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, GetCallerKey(r.Context()))
	})
	handler := CallerKey(engine.KeyStrategyIP, nil)(capture)

	for _, forwarded := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		req.Header.Set("True-Client-IP", forwarded)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, []string{"ip:203.0.113.7", "ip:203.0.113.7", "ip:203.0.113.7"}, seen)
}

func TestCallerKeyUsesForwardedClientBehindTrustedProxy(t *testing.T) {
	proxies, err := engine.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var seen string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCallerKey(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.4.4.4")
	CallerKey(engine.KeyStrategyIP, proxies)(capture).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "ip:198.51.100.9", seen)
}

func TestGetCallerKeyDefaultsToGlobal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, engine.GlobalKey, GetCallerKey(req.Context()))
}

func TestRecoveryHidesPanicValue(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret detail")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}
