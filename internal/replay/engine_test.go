package replay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/metrics"
	"github.com/bencrane/outbound-engine-x-api/internal/projector"
	"github.com/bencrane/outbound-engine-x-api/internal/store"
)

type fakeEventStore struct {
	mu       sync.Mutex
	events   map[string]*domain.WebhookEvent
	replayed []string
	failed   map[string]string
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		events: make(map[string]*domain.WebhookEvent),
		failed: make(map[string]string),
	}
}

func (s *fakeEventStore) add(provider, key, eventType, status, reason string) {
	payload, _ := json.Marshal(map[string]any{"event_id": key, "event": eventType})
	ev := &domain.WebhookEvent{
		Provider:  provider,
		EventKey:  key,
		EventType: eventType,
		Status:    status,
		Payload:   payload,
	}
	if reason != "" {
		ev.DeadLetterReason = &reason
	}
	s.events[key] = ev
}

func (s *fakeEventStore) GetEvent(_ context.Context, _, eventKey string) (*domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventKey]
	if !ok {
		return nil, nil
	}
	copied := *ev
	return &copied, nil
}

func (s *fakeEventStore) ListEvents(_ context.Context, f store.EventFilter) ([]domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WebhookEvent
	for _, ev := range s.events {
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		if f.DeadLetterReason != "" && (ev.DeadLetterReason == nil || *ev.DeadLetterReason != f.DeadLetterReason) {
			continue
		}
		if f.EventType != "" && ev.EventType != f.EventType {
			continue
		}
		out = append(out, *ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeEventStore) MarkReplayed(_ context.Context, _, eventKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replayed = append(s.replayed, eventKey)
	if ev, ok := s.events[eventKey]; ok {
		ev.Status = domain.StatusReplayed
		ev.DeadLetterReason = nil
	}
	return nil
}

func (s *fakeEventStore) MarkReplayFailed(_ context.Context, _, eventKey, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[eventKey] = errMsg
	return nil
}

type fakeProjector struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
}

func newFakeProjector() *fakeProjector {
	return &fakeProjector{calls: make(map[string]int), failures: make(map[string]error)}
}

func (p *fakeProjector) Project(_ context.Context, in projector.Input) (projector.Result, error) {
	key, _ := in.Payload["event_id"].(string)
	p.mu.Lock()
	p.calls[key]++
	err := p.failures[key]
	p.mu.Unlock()
	if err != nil {
		return projector.Result{}, err
	}
	return projector.Result{OrgID: "org-1"}, nil
}

func setupEngine(t *testing.T, st *fakeEventStore, p *fakeProjector) *Engine {
	t.Helper()
	pool := NewPool(2, 16, time.Second, testLogger())
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	e := NewEngine(st, p, pool, metrics.NewMemorySink(), nil, testLogger(), Options{
		BatchSize:  2,
		MaxPerRun:  10,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	})
	e.sleep = func(context.Context, time.Duration) bool { return true }
	return e
}

func TestEngine_BulkReportsEveryKeyInOrder(t *testing.T) {
	st := newFakeEventStore()
	st.add("smartlead", "a", "campaign.completed", domain.StatusFailed, "")
	st.add("smartlead", "c", "campaign.completed", domain.StatusFailed, "")
	proj := newFakeProjector()
	engine := setupEngine(t, st, proj)

	report, err := engine.ReplayBulk(context.Background(), "smartlead", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("bulk replay failed: %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
	wantStatuses := []string{
		domain.ReplayOutcomeReplayed,
		domain.ReplayOutcomeNotFound,
		domain.ReplayOutcomeReplayed,
	}
	for i, want := range wantStatuses {
		if report.Results[i].Status != want {
			t.Errorf("result %d: expected %q, got %q", i, want, report.Results[i].Status)
		}
	}
	if report.Results[0].EventKey != "a" || report.Results[1].EventKey != "b" || report.Results[2].EventKey != "c" {
		t.Errorf("results out of request order: %+v", report.Results)
	}
	if report.Replayed != 2 || report.NotFound != 1 || report.Failed != 0 {
		t.Errorf("unexpected tally: %+v", report)
	}
}

func TestEngine_BulkDeduplicatesKeys(t *testing.T) {
	st := newFakeEventStore()
	st.add("smartlead", "a", "campaign.completed", domain.StatusFailed, "")
	proj := newFakeProjector()
	engine := setupEngine(t, st, proj)

	report, err := engine.ReplayBulk(context.Background(), "smartlead", []string{"a", "a", "a"})
	if err != nil {
		t.Fatalf("bulk replay failed: %v", err)
	}

	if proj.calls["a"] != 1 {
		t.Errorf("expected one projection for duplicated key, got %d", proj.calls["a"])
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected one result per requested key, got %d", len(report.Results))
	}
	for _, item := range report.Results {
		if item.Status != domain.ReplayOutcomeReplayed {
			t.Errorf("expected replayed, got %q", item.Status)
		}
	}
}

func TestEngine_BulkRunCap(t *testing.T) {
	engine := setupEngine(t, newFakeEventStore(), newFakeProjector())
	engine.opts.MaxPerRun = 2

	_, err := engine.ReplayBulk(context.Background(), "smartlead", []string{"a", "b", "c"})
	if !errors.Is(err, ErrRunCapExceeded) {
		t.Fatalf("expected ErrRunCapExceeded, got %v", err)
	}
}

func TestEngine_FailedReplayRecordsError(t *testing.T) {
	st := newFakeEventStore()
	st.add("heyreach", "a", "lead.replied", domain.StatusFailed, "")
	proj := newFakeProjector()
	proj.failures["a"] = &domain.ProviderError{
		Provider:  "heyreach",
		Operation: "project",
		Category:  "upstream",
		Retryable: true,
		Err:       errors.New("connection reset"),
	}
	engine := setupEngine(t, st, proj)

	item := engine.ReplaySingle(context.Background(), "heyreach", "a")

	if item.Status != domain.ReplayOutcomeFailed {
		t.Fatalf("expected failed, got %q", item.Status)
	}
	if !item.Retryable {
		t.Error("upstream failure should be marked retryable")
	}
	if _, ok := st.failed["a"]; !ok {
		t.Error("expected failure recorded in store")
	}
}

func TestEngine_TerminalFailureNotRetryable(t *testing.T) {
	st := newFakeEventStore()
	st.add("heyreach", "a", "lead.replied", domain.StatusFailed, "")
	proj := newFakeProjector()
	proj.failures["a"] = errors.New("campaign mapping is wrong")
	engine := setupEngine(t, st, proj)

	item := engine.ReplaySingle(context.Background(), "heyreach", "a")

	if item.Status != domain.ReplayOutcomeFailed {
		t.Fatalf("expected failed, got %q", item.Status)
	}
	if item.Retryable {
		t.Error("plain errors must not be marked retryable")
	}
}

func TestEngine_ReplayDeadLettersFiltersByReason(t *testing.T) {
	st := newFakeEventStore()
	st.add("lob", "dl-1", "piece.delivered", domain.StatusDeadLetter, domain.ReasonProjectionUnresolved)
	st.add("lob", "dl-2", "piece.returned", domain.StatusDeadLetter, domain.ReasonMalformedPayload)
	st.add("lob", "ok-1", "piece.delivered", domain.StatusProcessed, "")
	proj := newFakeProjector()
	engine := setupEngine(t, st, proj)

	report, err := engine.ReplayDeadLetters(context.Background(), "lob", domain.ReasonProjectionUnresolved, 0)
	if err != nil {
		t.Fatalf("dead-letter replay failed: %v", err)
	}

	if len(report.Results) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(report.Results))
	}
	if report.Results[0].EventKey != "dl-1" {
		t.Errorf("expected dl-1, got %q", report.Results[0].EventKey)
	}
	if report.Results[0].Status != domain.ReplayOutcomeReplayed {
		t.Errorf("expected replayed, got %q", report.Results[0].Status)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.events["dl-1"].Status != domain.StatusReplayed {
		t.Errorf("expected dead letter to leave terminal state, got %q", st.events["dl-1"].Status)
	}
	if st.events["dl-2"].Status != domain.StatusDeadLetter {
		t.Errorf("unrelated dead letter must be untouched, got %q", st.events["dl-2"].Status)
	}
}

func TestEngine_QueryReplayTruncates(t *testing.T) {
	st := newFakeEventStore()
	for _, key := range []string{"q1", "q2", "q3", "q4"} {
		st.add("smartlead", key, "campaign.completed", domain.StatusProcessed, "")
	}
	engine := setupEngine(t, st, newFakeProjector())

	report, err := engine.ReplayQuery(context.Background(), "smartlead", QueryFilter{
		EventType: "campaign.completed",
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("query replay failed: %v", err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results under the limit, got %d", len(report.Results))
	}
	if !report.Truncated {
		t.Error("expected truncation flag when candidates exceed the limit")
	}
}

func TestEngine_ReplaySingleNotFound(t *testing.T) {
	engine := setupEngine(t, newFakeEventStore(), newFakeProjector())

	item := engine.ReplaySingle(context.Background(), "smartlead", "ghost")

	if item.Status != domain.ReplayOutcomeNotFound {
		t.Errorf("expected not_found, got %q", item.Status)
	}
}
