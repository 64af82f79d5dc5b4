package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordancj7/folio/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeInvalidInput:       http.StatusBadRequest,
		CodeValidationFailed:   http.StatusBadRequest,
		CodeQuotaExceeded:      http.StatusTooManyRequests,
		CodeNotFound:           http.StatusNotFound,
		CodeUnauthorized:       http.StatusUnauthorized,
		CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
		CodeExternalService:    http.StatusBadGateway,
		CodeTimeout:            http.StatusGatewayTimeout,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestRespondWithQuotaEnvelopeSetsRetryAfter(t *testing.T) {
	msg := "Rate limit exceeded. Maximum 5 requests per minute. Please try again in about 42 seconds."
	envelope := NewQuotaExceededError(msg, "rpm", 41500*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	RespondWithEnvelope(rec, req, envelope)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "42", rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeQuotaExceeded, body.Error.Code)
	assert.Equal(t, msg, body.Error.Message)
	assert.Equal(t, "rpm", body.Error.Details["kind"])
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestResponseDetailsHidesWrappedErrors(t *testing.T) {
	envelope := WrapInternal(context.Background(), stderrors.New("db password wrong"), "could not save message")

	rec := httptest.NewRecorder()
	RespondWithEnvelope(rec, httptest.NewRequest(http.MethodPost, "/api/contact", nil), envelope)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db password wrong")
}

func TestWrapUsesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDContextKey, "req-123")
	envelope := WrapNotFound(ctx, nil, "missing")
	assert.Equal(t, "req-123", envelope.CorrelationID)
	assert.Equal(t, CodeNotFound, envelope.Code)
}

func TestEnsureEnvelopeWrapsPlainErrors(t *testing.T) {
	envelope := EnsureEnvelope(stderrors.New("boom"))
	assert.Equal(t, CodeInternal, envelope.Code)
	assert.Equal(t, "unexpected error", envelope.Message)
	_, ok := RetryAfterSeconds(envelope)
	assert.False(t, ok)
}

func TestFieldValidationDetails(t *testing.T) {
	envelope := NewFieldValidationError("invalid contact message", map[string]string{"email": "must be a valid email address"})
	details := ResponseDetails(envelope)
	require.NotNil(t, details)
	assert.Equal(t, map[string]string{"email": "must be a valid email address"}, details["fields"])
}
