package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/jordancj7/folio/internal/core/store"
	apperrors "github.com/jordancj7/folio/internal/errors"
	"github.com/jordancj7/folio/internal/flow"
)

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// respondWithFlowError maps flow failures onto error envelopes. Quota denials
// carry the limiter's message unchanged.
func respondWithFlowError(w http.ResponseWriter, r *http.Request, err error) {
	ferr, ok := flow.AsError(err)
	if !ok {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "request failed"))
		return
	}

	switch ferr.Kind {
	case flow.KindQuotaExceeded:
		respondWithError(w, r, apperrors.NewQuotaExceededError(ferr.Message, string(ferr.Limit), ferr.RetryAfter))
	case flow.KindInvalidInput:
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), ferr.Err, ferr.Message))
	default:
		if ferr.Timeout() {
			respondWithError(w, r, apperrors.WrapTimeout(r.Context(), ferr.Err, ferr.Message))
			return
		}
		respondWithError(w, r, apperrors.WrapExternalService(r.Context(), ferr.Err, ferr.Message))
	}
}

// respondWithStoreError maps inbox store failures. message describes the
// attempted operation for non-lookup failures.
func respondWithStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if stderrors.Is(err, store.ErrNotFound) {
		respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "message not found"))
		return
	}
	respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, message))
}
