package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/replay"
	"github.com/bencrane/outbound-engine-x-api/internal/store"
)

type DeadLetterHandler struct {
	store  EventStore
	engine *replay.Engine
}

func NewDeadLetterHandler(s EventStore, e *replay.Engine) *DeadLetterHandler {
	return &DeadLetterHandler{store: s, engine: e}
}

// List returns dead-lettered events, optionally filtered by provider and
// dead-letter reason.
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	letters, err := h.store.ListEvents(r.Context(), store.EventFilter{
		Provider:         q.Get("provider"),
		Status:           domain.StatusDeadLetter,
		DeadLetterReason: q.Get("reason"),
		Limit:            limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"dead_letters": letters,
		"count":        len(letters),
	})
}

// Get returns one dead-lettered event.
func (h *DeadLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	eventKey := chi.URLParam(r, "event_key")

	event, err := h.store.GetEvent(r.Context(), provider, eventKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get dead letter")
		return
	}
	if event == nil || event.Status != domain.StatusDeadLetter {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}

type deadLetterReplayRequest struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Replay re-runs projection for dead-lettered events after the operator
// has fixed the underlying cause.
func (h *DeadLetterHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var req deadLetterReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.KnownProvider(req.Provider) {
		respondError(w, http.StatusBadRequest, "provider is required")
		return
	}

	report, err := h.engine.ReplayDeadLetters(r.Context(), req.Provider, req.Reason, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "replay run failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
