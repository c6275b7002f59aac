package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/store"
)

// EventStore is the read surface for the operator event endpoints.
type EventStore interface {
	ListEvents(ctx context.Context, f store.EventFilter) ([]domain.WebhookEvent, error)
	GetEvent(ctx context.Context, provider, eventKey string) (*domain.WebhookEvent, error)
}

type EventHandler struct {
	store EventStore
}

func NewEventHandler(s EventStore) *EventHandler {
	return &EventHandler{store: s}
}

// List returns stored webhook events, newest first, filtered by query
// parameters.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.store.ListEvents(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Get returns one stored event by provider and event key.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	eventKey := chi.URLParam(r, "event_key")

	event, err := h.store.GetEvent(r.Context(), provider, eventKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}

func filterFromQuery(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()
	f := store.EventFilter{
		Provider:         q.Get("provider"),
		OrgID:            q.Get("org_id"),
		CompanyID:        q.Get("company_id"),
		EventType:        q.Get("event_type"),
		Status:           q.Get("status"),
		DeadLetterReason: q.Get("dead_letter_reason"),
		Limit:            50,
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{
		{"from", &f.From},
		{"to", &f.To},
	} {
		if v := q.Get(bound.param); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, &queryError{param: bound.param}
			}
			*bound.dst = &t
		}
	}
	return f, nil
}

type queryError struct{ param string }

func (e *queryError) Error() string {
	return e.param + " must be an RFC 3339 timestamp"
}
