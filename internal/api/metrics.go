package api

import (
	"context"
	"net/http"
	"time"
)

// Snapshotter reads the current counter values from a metrics sink.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

type MetricsHandler struct {
	sink Snapshotter
}

func NewMetricsHandler(sink Snapshotter) *MetricsHandler {
	return &MetricsHandler{sink: sink}
}

// Get returns all ingestion and replay counters.
func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	counters, err := h.sink.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read metrics")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"counters":     counters,
		"collected_at": time.Now().UTC(),
	})
}
