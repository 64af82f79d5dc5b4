package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jordancj7/folio/internal/ailink/driver"
)

// Stable provider failure codes.
const (
	CodeProviderTimeout     = "AILINK_PROVIDER_TIMEOUT"
	CodeProviderAuth        = "AILINK_PROVIDER_AUTH"
	CodeProviderRateLimit   = "AILINK_PROVIDER_RATE_LIMIT"
	CodeProviderUnavailable = "AILINK_PROVIDER_UNAVAILABLE"
	CodeProviderBadRequest  = "AILINK_PROVIDER_BAD_REQUEST"
	CodeProviderError       = "AILINK_PROVIDER_ERROR"
	CodeInvalidResponse     = "AILINK_INVALID_RESPONSE"
)

// ErrorInfo classifies an ailink failure for logs and API envelopes.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Retryable reports whether another provider or a later attempt may succeed.
func (e *ErrorInfo) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case CodeProviderTimeout, CodeProviderRateLimit, CodeProviderUnavailable:
		return true
	default:
		return false
	}
}

// MapProviderError classifies err into a stable code.
func MapProviderError(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ErrorInfo{Code: CodeProviderTimeout, Message: "provider request timed out"}
	}

	var rerr *RawResponseError
	if errors.As(err, &rerr) && rerr != nil {
		return &ErrorInfo{Code: CodeInvalidResponse, Message: "provider returned an invalid response", Details: safeOneLine(rerr.Error())}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := safeOneLine(perr.Message)
		switch {
		case status == 401 || status == 403:
			return &ErrorInfo{Code: CodeProviderAuth, Message: "provider authentication failed", Details: details}
		case status == 429:
			return &ErrorInfo{Code: CodeProviderRateLimit, Message: "provider rate limited", Details: details}
		case status >= 500 && status <= 599:
			return &ErrorInfo{Code: CodeProviderUnavailable, Message: "provider unavailable", Details: details}
		case status >= 400 && status <= 499:
			return &ErrorInfo{Code: CodeProviderBadRequest, Message: "provider rejected request", Details: details}
		default:
			return &ErrorInfo{Code: CodeProviderError, Message: "provider request failed", Details: details}
		}
	}

	return &ErrorInfo{Code: CodeProviderError, Message: "provider request failed", Details: safeOneLine(err.Error())}
}

// RawResponseError wraps an error with the raw response payload.
//
// This is returned when the model produced output that failed decoding or
// schema validation; Raw is populated only when raw capture is enabled.
type RawResponseError struct {
	Err error
	Raw json.RawMessage
}

func (e *RawResponseError) Error() string {
	if e == nil || e.Err == nil {
		return "ailink error"
	}
	return e.Err.Error()
}

func (e *RawResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), "api key is required") {
		return true
	}
	return MapProviderError(err).Retryable()
}
