package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/jordancj7/folio/internal/ailink/prompt"
	"github.com/jordancj7/folio/internal/core"
	apperrors "github.com/jordancj7/folio/internal/errors"
	"github.com/jordancj7/folio/internal/flow"
	"github.com/jordancj7/folio/internal/server/middleware"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 64 << 10

// ChatRunner runs the chat flow. *flow.ChatFlow implements it.
type ChatRunner interface {
	Name() string
	InputSchema() map[string]any
	Invoke(ctx context.Context, callerKey string, in flow.ChatInput) (flow.ChatOutput, error)
}

// RefineRunner runs the refine flow. *flow.RefineFlow implements it.
type RefineRunner interface {
	Name() string
	InputSchema() map[string]any
	Invoke(ctx context.Context, callerKey string, in flow.RefineInput) (flow.RefineOutput, error)
}

// QuotaManager reports and resets caller quotas. *engine.RateLimiter implements it.
type QuotaManager interface {
	Status(ctx context.Context, key string) (core.QuotaUsage, error)
	Reset(ctx context.Context, key string) error
}

// API serves the public and admin JSON endpoints.
type API struct {
	Chat     ChatRunner
	Refine   RefineRunner
	Quota    QuotaManager
	Messages MessageStore
	Prompts  []prompt.Summary

	// MaxBodyBytes caps decoded request bodies. Zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// ChatHandler answers POST /api/chat.
func (a *API) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var in flow.ChatInput
	if !a.decode(w, r, &in) {
		return
	}
	out, err := a.Chat.Invoke(r.Context(), middleware.GetCallerKey(r.Context()), in)
	if err != nil {
		respondWithFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RefineHandler answers POST /api/refine.
func (a *API) RefineHandler(w http.ResponseWriter, r *http.Request) {
	var in flow.RefineInput
	if !a.decode(w, r, &in) {
		return
	}
	out, err := a.Refine.Invoke(r.Context(), middleware.GetCallerKey(r.Context()), in)
	if err != nil {
		respondWithFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// FlowsHandler lists the flows with the input schema each one accepts, and
// the prompts behind them.
func (a *API) FlowsHandler(w http.ResponseWriter, _ *http.Request) {
	schemas := map[string]any{}
	if a.Chat != nil {
		schemas[a.Chat.Name()] = a.Chat.InputSchema()
	}
	if a.Refine != nil {
		schemas[a.Refine.Name()] = a.Refine.InputSchema()
	}
	body := map[string]any{"flows": schemas}
	if len(a.Prompts) > 0 {
		body["prompts"] = a.Prompts
	}
	writeJSON(w, http.StatusOK, body)
}

// QuotaHandler reports the caller's current usage without consuming quota.
func (a *API) QuotaHandler(w http.ResponseWriter, r *http.Request) {
	usage, err := a.Quota.Status(r.Context(), middleware.GetCallerKey(r.Context()))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "quota status unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// ResetQuotaHandler clears a caller's window. The key query parameter selects
// the caller; without it the shared global key is reset.
func (a *API) ResetQuotaHandler(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if err := a.Quota.Reset(r.Context(), key); err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "quota reset failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into v, writing the error response itself on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close() // nolint:errcheck // request body

	decoder := json.NewDecoder(body)
	if err := decoder.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			respondWithError(w, r, apperrors.NewPayloadTooLargeError("request body is too large"))
		case stderrors.Is(err, io.EOF):
			respondWithError(w, r, apperrors.NewInvalidInputError("request body is required"))
		default:
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be valid JSON"))
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
