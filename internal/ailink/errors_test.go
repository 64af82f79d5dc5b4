package ailink

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordancj7/folio/internal/ailink/driver"
)

func TestMapProviderError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"timeout", fmt.Errorf("request failed: %w", context.DeadlineExceeded), CodeProviderTimeout},
		{"auth", &driver.ProviderError{Provider: "gemini", StatusCode: 403, Message: "denied"}, CodeProviderAuth},
		{"rate", &driver.ProviderError{Provider: "gemini", StatusCode: 429, Message: "slow down"}, CodeProviderRateLimit},
		{"unavailable", &driver.ProviderError{Provider: "openai", StatusCode: 503}, CodeProviderUnavailable},
		{"bad request", &driver.ProviderError{Provider: "openai", StatusCode: 400}, CodeProviderBadRequest},
		{"no status", &driver.ProviderError{Provider: "gemini", Message: "socket"}, CodeProviderError},
		{"invalid", &RawResponseError{Err: errors.New("schema validation failed")}, CodeInvalidResponse},
		{"other", errors.New("boom"), CodeProviderError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := MapProviderError(tc.err)
			require.NotNil(t, info)
			require.Equal(t, tc.code, info.Code)
		})
	}
	require.Nil(t, MapProviderError(nil))
}

func TestErrorInfoRetryable(t *testing.T) {
	require.True(t, (&ErrorInfo{Code: CodeProviderRateLimit}).Retryable())
	require.True(t, (&ErrorInfo{Code: CodeProviderTimeout}).Retryable())
	require.False(t, (&ErrorInfo{Code: CodeProviderAuth}).Retryable())
	require.False(t, (*ErrorInfo)(nil).Retryable())
}

func TestRawResponseErrorUnwraps(t *testing.T) {
	inner := errors.New("decode")
	err := &RawResponseError{Err: inner, Raw: []byte(`{}`)}
	require.ErrorIs(t, err, inner)
	require.Equal(t, "decode", err.Error())
}
