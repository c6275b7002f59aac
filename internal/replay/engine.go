// Package replay re-runs the persist/project stages for already-stored
// webhook events: single, bulk, query-driven, and dead-letter-driven
// entry points, all funneled through a bounded worker pool with adaptive
// backpressure.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/metrics"
	"github.com/bencrane/outbound-engine-x-api/internal/projector"
	"github.com/bencrane/outbound-engine-x-api/internal/store"
	"github.com/bencrane/outbound-engine-x-api/internal/ws"
)

// ErrRunCapExceeded is returned when a replay request names more events
// than the per-run cap allows.
var ErrRunCapExceeded = errors.New("replay run exceeds per-run event cap")

// EventStore is the persistence surface the replay engine needs.
type EventStore interface {
	GetEvent(ctx context.Context, provider, eventKey string) (*domain.WebhookEvent, error)
	ListEvents(ctx context.Context, f store.EventFilter) ([]domain.WebhookEvent, error)
	MarkReplayed(ctx context.Context, provider, eventKey string) error
	MarkReplayFailed(ctx context.Context, provider, eventKey, errMsg string) error
}

// Projector applies one stored event to local state.
type Projector interface {
	Project(ctx context.Context, in projector.Input) (projector.Result, error)
}

// Options bound a replay run.
type Options struct {
	BatchSize   int
	MaxPerRun   int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	QueryLimit  int // default limit for query/dead-letter candidate sets
}

// Engine executes replay runs.
type Engine struct {
	store     EventStore
	projector Projector
	pool      *Pool
	sink      metrics.Sink
	hub       *ws.Hub
	logger    *slog.Logger
	opts      Options

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewEngine(st EventStore, p Projector, pool *Pool, sink metrics.Sink, hub *ws.Hub, logger *slog.Logger, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.QueryLimit <= 0 {
		opts.QueryLimit = 50
	}
	return &Engine{
		store:     st,
		projector: p,
		pool:      pool,
		sink:      sink,
		hub:       hub,
		logger:    logger,
		opts:      opts,
		sleep:     sleepCtx,
	}
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ReplaySingle replays one event synchronously, bypassing the pool. The
// only mode guaranteed to complete before the caller's response.
func (e *Engine) ReplaySingle(ctx context.Context, provider, eventKey string) domain.ReplayItem {
	runID := uuid.NewString()
	return e.replayOne(ctx, provider, eventKey, domain.ReplayReasonSingle, runID)
}

// ReplayBulk replays an explicit list of event keys. Duplicate keys are
// suppressed to a single logical replay, but the report still carries one
// entry per requested key, in request order.
func (e *Engine) ReplayBulk(ctx context.Context, provider string, eventKeys []string) (domain.ReplayReport, error) {
	return e.run(ctx, provider, domain.ReplayReasonBulk, eventKeys, false)
}

// QueryFilter selects the candidate set for a query replay.
type QueryFilter struct {
	OrgID     string
	CompanyID string
	EventType string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// ReplayQuery resolves a candidate set server-side and replays it. The
// limit is a hard cap: when more events match, the report is marked
// truncated.
func (e *Engine) ReplayQuery(ctx context.Context, provider string, f QueryFilter) (domain.ReplayReport, error) {
	limit := e.boundedLimit(f.Limit)

	events, err := e.store.ListEvents(ctx, store.EventFilter{
		Provider:  provider,
		OrgID:     f.OrgID,
		CompanyID: f.CompanyID,
		EventType: f.EventType,
		From:      f.From,
		To:        f.To,
		Limit:     limit + 1, // one extra row detects truncation
	})
	if err != nil {
		return domain.ReplayReport{}, fmt.Errorf("resolving query replay candidates: %w", err)
	}

	truncated := len(events) > limit
	if truncated {
		events = events[:limit]
	}

	keys := make([]string, len(events))
	for i, ev := range events {
		keys[i] = ev.EventKey
	}

	report, err := e.run(ctx, provider, domain.ReplayReasonQuery, keys, true)
	report.Truncated = truncated
	return report, err
}

// ReplayDeadLetters replays dead-lettered events, optionally filtered by
// dead-letter reason: "retry everything that failed for reason X after I
// fixed X".
func (e *Engine) ReplayDeadLetters(ctx context.Context, provider, reason string, limit int) (domain.ReplayReport, error) {
	bounded := e.boundedLimit(limit)

	events, err := e.store.ListEvents(ctx, store.EventFilter{
		Provider:         provider,
		Status:           domain.StatusDeadLetter,
		DeadLetterReason: reason,
		Limit:            bounded + 1,
	})
	if err != nil {
		return domain.ReplayReport{}, fmt.Errorf("resolving dead-letter replay candidates: %w", err)
	}

	truncated := len(events) > bounded
	if truncated {
		events = events[:bounded]
	}

	keys := make([]string, len(events))
	for i, ev := range events {
		keys[i] = ev.EventKey
	}

	report, err := e.run(ctx, provider, domain.ReplayReasonDeadLetter, keys, true)
	report.Truncated = truncated
	return report, err
}

func (e *Engine) boundedLimit(limit int) int {
	if limit <= 0 {
		limit = e.opts.QueryLimit
	}
	if e.opts.MaxPerRun > 0 && limit > e.opts.MaxPerRun {
		limit = e.opts.MaxPerRun
	}
	return limit
}

// run executes a replay over the requested keys: dedupe, submit in
// batches through the pool, observe each batch in the backoff controller,
// and assemble a report with one entry per requested key.
//
// Cancellation stops submitting new tasks; tasks already dispatched run
// to completion on the pool's own context so no replay is half-applied.
func (e *Engine) run(ctx context.Context, provider, reason string, requested []string, preResolved bool) (domain.ReplayReport, error) {
	runID := uuid.NewString()
	report := domain.ReplayReport{
		RunID:     runID,
		Provider:  provider,
		Reason:    reason,
		StartedAt: time.Now().UTC(),
	}

	unique := dedupeKeys(requested)
	if !preResolved && e.opts.MaxPerRun > 0 && len(unique) > e.opts.MaxPerRun {
		return report, fmt.Errorf("%d events requested, cap is %d: %w",
			len(unique), e.opts.MaxPerRun, ErrRunCapExceeded)
	}

	e.logger.Info("replay run started",
		"run_id", runID, "provider", provider, "reason", reason,
		"requested", len(requested), "unique", len(unique))

	outcomes := make([]domain.ReplayItem, len(unique))
	backoff := NewBackoff(e.opts.BaseDelay, e.opts.MaxDelay, e.opts.Multiplier)
	cancelled := false

	for start := 0; start < len(unique); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		if cancelled {
			for i := range batch {
				outcomes[start+i] = cancelledItem(batch[i])
			}
			continue
		}

		done := make(chan struct{}, len(batch))
		submitted := 0
		for i, key := range batch {
			idx := start + i
			key := key
			if err := e.pool.Submit(ctx, func(taskCtx context.Context) {
				outcomes[idx] = e.replayOne(taskCtx, provider, key, reason, runID)
				done <- struct{}{}
			}); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					cancelled = true
					outcomes[idx] = cancelledItem(key)
					continue
				}
				outcomes[idx] = domain.ReplayItem{
					EventKey:  key,
					Status:    domain.ReplayOutcomeFailed,
					Error:     err.Error(),
					Retryable: true,
				}
				continue
			}
			submitted++
		}

		for i := 0; i < submitted; i++ {
			<-done
		}

		transient, terminal, succeeded := tallyBatch(outcomes[start:end])
		backoff.ObserveBatch(transient, terminal, succeeded)

		if end < len(unique) && !cancelled {
			if !e.sleep(ctx, backoff.Delay()) {
				cancelled = true
			}
		}
	}

	byKey := make(map[string]domain.ReplayItem, len(unique))
	for i, key := range unique {
		byKey[key] = outcomes[i]
	}
	report.Results = make([]domain.ReplayItem, len(requested))
	for i, key := range requested {
		report.Results[i] = byKey[key]
	}
	report.Tally()

	e.logger.Info("replay run finished",
		"run_id", runID, "provider", provider, "reason", reason,
		"replayed", report.Replayed, "failed", report.Failed, "not_found", report.NotFound)
	return report, nil
}

// replayOne re-runs projection for one stored event and records the
// transition. Every failure is contained to this event's report entry.
func (e *Engine) replayOne(ctx context.Context, provider, eventKey, reason, runID string) domain.ReplayItem {
	ev, err := e.store.GetEvent(ctx, provider, eventKey)
	if err != nil {
		return domain.ReplayItem{
			EventKey:  eventKey,
			Status:    domain.ReplayOutcomeFailed,
			Error:     err.Error(),
			Retryable: true,
		}
	}
	if ev == nil {
		e.sink.Incr(ctx, metrics.MetricReplayNotFound, metrics.Labels{"provider": provider})
		return domain.ReplayItem{EventKey: eventKey, Status: domain.ReplayOutcomeNotFound}
	}

	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload == nil {
		return e.recordFailure(ctx, ev, reason, runID,
			fmt.Errorf("stored payload is not a JSON object"), false)
	}

	_, err = e.projector.Project(ctx, projector.Input{
		Provider:  provider,
		EventType: ev.EventType,
		Payload:   payload,
		Raw:       ev.Payload,
	})
	if err != nil {
		return e.recordFailure(ctx, ev, reason, runID, err, domain.Retryable(err))
	}

	if err := e.store.MarkReplayed(ctx, provider, eventKey); err != nil {
		return e.recordFailure(ctx, ev, reason, runID, err, true)
	}

	e.sink.Incr(ctx, metrics.MetricReplayed, metrics.Labels{"provider": provider, "reason": reason})
	e.publish(ev, domain.ReplayOutcomeReplayed, "", runID)
	return domain.ReplayItem{
		EventKey:  eventKey,
		Status:    domain.ReplayOutcomeReplayed,
		EventType: ev.EventType,
	}
}

func (e *Engine) recordFailure(ctx context.Context, ev *domain.WebhookEvent, reason, runID string, cause error, retryable bool) domain.ReplayItem {
	if err := e.store.MarkReplayFailed(ctx, ev.Provider, ev.EventKey, cause.Error()); err != nil {
		e.logger.Error("failed to record replay failure",
			"provider", ev.Provider, "event_key", ev.EventKey, "error", err)
	}
	e.sink.Incr(ctx, metrics.MetricReplayFailed, metrics.Labels{
		"provider":  ev.Provider,
		"reason":    reason,
		"retryable": fmt.Sprintf("%t", retryable),
	})
	e.publish(ev, domain.ReplayOutcomeFailed, cause.Error(), runID)
	e.logger.Warn("replay failed",
		"provider", ev.Provider, "event_key", ev.EventKey,
		"retryable", retryable, "error", cause)
	return domain.ReplayItem{
		EventKey:  ev.EventKey,
		Status:    domain.ReplayOutcomeFailed,
		EventType: ev.EventType,
		Error:     cause.Error(),
		Retryable: retryable,
	}
}

func (e *Engine) publish(ev *domain.WebhookEvent, status, errMsg, runID string) {
	if e.hub == nil {
		return
	}
	e.hub.Publish(ws.StatusEvent{
		Kind:      "replay",
		Provider:  ev.Provider,
		EventKey:  ev.EventKey,
		EventType: ev.EventType,
		Status:    status,
		Reason:    errMsg,
		RunID:     runID,
	})
}

func cancelledItem(key string) domain.ReplayItem {
	return domain.ReplayItem{
		EventKey:  key,
		Status:    domain.ReplayOutcomeFailed,
		Error:     "replay cancelled before dispatch",
		Retryable: true,
	}
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	return unique
}

func tallyBatch(items []domain.ReplayItem) (transient, terminal, succeeded int) {
	for _, item := range items {
		switch item.Status {
		case domain.ReplayOutcomeFailed:
			if item.Retryable {
				transient++
			} else {
				terminal++
			}
		case domain.ReplayOutcomeReplayed, domain.ReplayOutcomeNotFound:
			succeeded++
		}
	}
	return transient, terminal, succeeded
}
