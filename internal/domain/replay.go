package domain

import "time"

// Why a replay was requested.
const (
	ReplayReasonSingle     = "single"
	ReplayReasonBulk       = "bulk"
	ReplayReasonQuery      = "query"
	ReplayReasonDeadLetter = "dead_letter"
)

// Per-event replay outcomes.
const (
	ReplayOutcomeReplayed = "replayed"
	ReplayOutcomeFailed   = "failed"
	ReplayOutcomeNotFound = "not_found"
)

// ReplayItem is the outcome for one requested event key. Callers rely on a
// 1:1 mapping from requested key to item, in request order.
type ReplayItem struct {
	EventKey  string `json:"event_key"`
	Status    string `json:"status"`
	EventType string `json:"event_type,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ReplayReport is the aggregate result of one replay run.
type ReplayReport struct {
	RunID     string       `json:"run_id"`
	Provider  string       `json:"provider_slug"`
	Reason    string       `json:"reason"`
	Requested int          `json:"requested"`
	Replayed  int          `json:"replayed"`
	Failed    int          `json:"failed"`
	NotFound  int          `json:"not_found"`
	Truncated bool         `json:"truncated,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	Results   []ReplayItem `json:"results"`
}

// Tally recomputes the aggregate counts from Results.
func (r *ReplayReport) Tally() {
	r.Requested = len(r.Results)
	r.Replayed, r.Failed, r.NotFound = 0, 0, 0
	for _, item := range r.Results {
		switch item.Status {
		case ReplayOutcomeReplayed:
			r.Replayed++
		case ReplayOutcomeFailed:
			r.Failed++
		case ReplayOutcomeNotFound:
			r.NotFound++
		}
	}
}
