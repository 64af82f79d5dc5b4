package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jordancj7/folio/internal/core"
	"github.com/jordancj7/folio/internal/core/store"
	apperrors "github.com/jordancj7/folio/internal/errors"
	"github.com/jordancj7/folio/internal/metrics"
)

// MessageStore persists contact messages. *store.Store implements it.
type MessageStore interface {
	InsertMessage(ctx context.Context, in core.ContactInput) (*core.Message, error)
	ListMessages(ctx context.Context, q store.MessageQuery) ([]core.Message, error)
	CountMessages(ctx context.Context, q store.MessageQuery) (int, error)
	DeleteMessage(ctx context.Context, id string) error
	UpdateMessageFlags(ctx context.Context, id string, flags core.MessageFlags) (*core.Message, error)
}

// ContactResponse acknowledges a stored contact message.
type ContactResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// MessageListResponse is the admin inbox view.
type MessageListResponse struct {
	Messages []core.Message `json:"messages"`
	Total    int            `json:"total"`
	Unread   int            `json:"unread"`
}

// ContactHandler stores a contact form submission.
func (a *API) ContactHandler(w http.ResponseWriter, r *http.Request) {
	var in core.ContactInput
	if !a.decode(w, r, &in) {
		return
	}

	msg, err := a.Messages.InsertMessage(r.Context(), in)
	if err != nil {
		metrics.RecordContactMessage(false)
		var fieldErr *core.FieldError
		if stderrors.As(err, &fieldErr) {
			respondWithError(w, r, apperrors.NewFieldValidationError(fieldErr.Error(),
				map[string]string{fieldErr.Field: fieldErr.Message}))
			return
		}
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "could not save message"))
		return
	}

	metrics.RecordContactMessage(true)
	writeJSON(w, http.StatusCreated, ContactResponse{Success: true, ID: msg.ID})
}

// ListMessagesHandler returns messages newest first. Query parameters unread,
// starred and limit narrow the result.
func (a *API) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := store.MessageQuery{
		Unread:  parseBool(query.Get("unread")),
		Starred: parseBool(query.Get("starred")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondWithError(w, r, apperrors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	messages, err := a.Messages.ListMessages(r.Context(), q)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "could not list messages"))
		return
	}
	total, err := a.Messages.CountMessages(r.Context(), store.MessageQuery{})
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "could not count messages"))
		return
	}
	unread, err := a.Messages.CountMessages(r.Context(), store.MessageQuery{Unread: true})
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "could not count messages"))
		return
	}

	writeJSON(w, http.StatusOK, MessageListResponse{Messages: messages, Total: total, Unread: unread})
}

// UpdateMessageHandler applies a partial flag update.
func (a *API) UpdateMessageHandler(w http.ResponseWriter, r *http.Request) {
	var flags core.MessageFlags
	if !a.decode(w, r, &flags) {
		return
	}
	if flags.Empty() {
		respondWithError(w, r, apperrors.NewInvalidInputError("read or starred is required"))
		return
	}

	msg, err := a.Messages.UpdateMessageFlags(r.Context(), chi.URLParam(r, "id"), flags)
	metrics.RecordOperation("message_update", err == nil)
	if err != nil {
		respondWithStoreError(w, r, err, "could not update message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessageHandler removes a message.
func (a *API) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	err := a.Messages.DeleteMessage(r.Context(), chi.URLParam(r, "id"))
	metrics.RecordOperation("message_delete", err == nil)
	if err != nil {
		respondWithStoreError(w, r, err, "could not delete message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseBool(value string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && v
}
