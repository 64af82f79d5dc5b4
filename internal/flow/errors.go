package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jordancj7/folio/internal/core"
)

// Kind classifies a flow failure.
type Kind string

const (
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindInvalidInput    Kind = "invalid_input"
	KindProviderFailure Kind = "provider_failure"
)

// providerFailureMessage is shown to callers instead of provider internals.
const providerFailureMessage = "The assistant is unavailable right now. Please try again later."

// Error is returned by Flow.Invoke for every failure.
type Error struct {
	Kind    Kind
	Message string

	// Limit and RetryAfter are set for KindQuotaExceeded.
	Limit      core.LimitKind
	RetryAfter time.Duration

	Err error
}

// Error returns Message. For quota failures this is the limiter's message verbatim.
func (e *Error) Error() string {
	if e == nil {
		return "flow error"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e != nil && (e.Kind == KindQuotaExceeded || e.Kind == KindProviderFailure)
}

// Timeout reports whether the model call ran out of time.
func (e *Error) Timeout() bool {
	return e != nil && e.Kind == KindProviderFailure && errors.Is(e.Err, context.DeadlineExceeded)
}

func quotaError(decision core.Decision) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: decision.Message, Limit: decision.Kind, RetryAfter: decision.RetryAfter}
}

func invalidInput(message string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, Err: err}
}

func providerFailure(err error) *Error {
	return &Error{Kind: KindProviderFailure, Message: providerFailureMessage, Err: err}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ferr *Error
	if errors.As(err, &ferr) && ferr != nil {
		return ferr, true
	}
	return nil, false
}

// IsQuotaError reports whether err is a rate limit rejection. Errors that only
// carry the limiter's text are recognized by message.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if ferr, ok := AsError(err); ok {
		return ferr.Kind == KindQuotaExceeded
	}
	msg := err.Error()
	return strings.Contains(msg, "Rate limit exceeded") || strings.Contains(msg, "Daily request limit exceeded")
}
