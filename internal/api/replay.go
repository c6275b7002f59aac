package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/replay"
)

type ReplayHandler struct {
	engine *replay.Engine
}

func NewReplayHandler(e *replay.Engine) *ReplayHandler {
	return &ReplayHandler{engine: e}
}

// Single replays one event by provider and event key, synchronously.
func (h *ReplayHandler) Single(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	eventKey := chi.URLParam(r, "event_key")
	if !domain.KnownProvider(provider) {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	item := h.engine.ReplaySingle(r.Context(), provider, eventKey)
	if item.Status == domain.ReplayOutcomeNotFound {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, item)
}

type bulkReplayRequest struct {
	Provider  string   `json:"provider"`
	EventKeys []string `json:"event_keys"`
}

// Bulk replays an explicit list of event keys for one provider.
func (h *ReplayHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.KnownProvider(req.Provider) {
		respondError(w, http.StatusBadRequest, "provider is required")
		return
	}
	if len(req.EventKeys) == 0 {
		respondError(w, http.StatusBadRequest, "event_keys is required")
		return
	}

	report, err := h.engine.ReplayBulk(r.Context(), req.Provider, req.EventKeys)
	if err != nil {
		if errors.Is(err, replay.ErrRunCapExceeded) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "replay run failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

type queryReplayRequest struct {
	Provider  string     `json:"provider"`
	OrgID     string     `json:"org_id,omitempty"`
	CompanyID string     `json:"company_id,omitempty"`
	EventType string     `json:"event_type,omitempty"`
	From      *time.Time `json:"from_ts,omitempty"`
	To        *time.Time `json:"to_ts,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// Query resolves a candidate set server-side and replays it.
func (h *ReplayHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.KnownProvider(req.Provider) {
		respondError(w, http.StatusBadRequest, "provider is required")
		return
	}

	report, err := h.engine.ReplayQuery(r.Context(), req.Provider, replay.QueryFilter{
		OrgID:     req.OrgID,
		CompanyID: req.CompanyID,
		EventType: req.EventType,
		From:      req.From,
		To:        req.To,
		Limit:     req.Limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "replay run failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
