package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordancj7/folio/internal/ailink"
	"github.com/jordancj7/folio/internal/config"
	"github.com/jordancj7/folio/internal/core/engine"
	apperrors "github.com/jordancj7/folio/internal/errors"
	"github.com/jordancj7/folio/internal/flow"
	"github.com/jordancj7/folio/internal/server/handlers"
)

type countingModel struct {
	calls atomic.Int32
	raw   string
}

func (m *countingModel) Generate(context.Context, ailink.GenerateRequest) (*ailink.GenerateResponse, error) {
	m.calls.Add(1)
	return &ailink.GenerateResponse{Raw: json.RawMessage(m.raw), Provider: "fake", Model: "fake"}, nil
}

func newTestServer(t *testing.T, rpm int) (*Server, *countingModel) {
	t.Helper()

	limiter := engine.NewRateLimiter(nil, engine.RateLimits{RequestsPerMinute: rpm, RequestsPerDay: 100})
	model := &countingModel{raw: `{"response":"I build Go services.","isRelevant":true}`}
	deps := flow.Deps{Model: model, Limiter: limiter}

	chat, err := flow.NewChatFlow(deps, flow.ChatOptions{})
	require.NoError(t, err)
	refine, err := flow.NewRefineFlow(deps)
	require.NoError(t, err)

	srv := New(Options{
		Config:      config.ServerConfig{Host: "127.0.0.1", Port: 0},
		API:         &handlers.API{Chat: chat, Refine: refine, Quota: limiter},
		AdminToken:  "s3cret",
		KeyStrategy: engine.KeyStrategyIP,
	})
	return srv, model
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestChatRouteEnforcesQuotaPerClient(t *testing.T) {
	srv, model := newTestServer(t, 2)

	post := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"What do you build?"}`))
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, post("198.51.100.1:1000").Code)
	require.Equal(t, http.StatusOK, post("198.51.100.1:1001").Code)

	denied := post("198.51.100.1:1002")
	require.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.NotEmpty(t, denied.Header().Get("Retry-After"))
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(denied.Body).Decode(&body))
	assert.True(t, strings.HasPrefix(body.Error.Message, "Rate limit exceeded. Maximum 2 requests per minute."))

	// Another client has its own window.
	require.Equal(t, http.StatusOK, post("198.51.100.2:1000").Code)
	assert.EqualValues(t, 3, model.calls.Load())
}

func TestChatRouteIgnoresSpoofedForwardingHeaders(t *testing.T) {
	srv, model := newTestServer(t, 1)

	admitted := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"What do you build?"}`))
		req.RemoteAddr = "203.0.113.50:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i+1))
		req.Header.Set("True-Client-IP", fmt.Sprintf("192.0.2.%d", i+100))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			admitted++
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}

	assert.Equal(t, 1, admitted)
	assert.EqualValues(t, 1, model.calls.Load())
}

func TestRefineRouteRejectsShortDescriptionWithoutModelCall(t *testing.T) {
	srv, model := newTestServer(t, 5)

	req := httptest.NewRequest(http.MethodPost, "/api/refine", strings.NewReader(`{"description":"Too short.","tonePreferences":"friendly"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, model.calls.Load())
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/quota", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/quota?key=ip:198.51.100.1", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthAndVersionRoutes(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup", "/version"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv := New(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
