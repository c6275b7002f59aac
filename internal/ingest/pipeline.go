// Package ingest orchestrates one inbound webhook request:
// gate → verify → persist → project → acknowledge.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/gate"
	"github.com/bencrane/outbound-engine-x-api/internal/metrics"
	"github.com/bencrane/outbound-engine-x-api/internal/projector"
	"github.com/bencrane/outbound-engine-x-api/internal/signature"
	"github.com/bencrane/outbound-engine-x-api/internal/store"
	"github.com/bencrane/outbound-engine-x-api/internal/ws"
)

// Request statuses reported to the provider.
const (
	StatusProcessed         = "processed"
	StatusDuplicateIgnored  = "duplicate_ignored"
	StatusDeadLetter        = "dead_letter"
	StatusSignatureRejected = "signature_rejected"
)

// EventStore is the persistence surface the pipeline needs.
type EventStore interface {
	InsertEventIfAbsent(ctx context.Context, rec store.EventRecord) (bool, error)
	SetEventTenant(ctx context.Context, provider, eventKey string, orgID, companyID *string) error
	MarkDeadLetter(ctx context.Context, provider, eventKey, reason, errMsg string) error
}

// Projector applies one validated event to local state.
type Projector interface {
	Project(ctx context.Context, in projector.Input) (projector.Result, error)
}

// Outcome is the terminal result of ingesting one request.
type Outcome struct {
	Status     string `json:"status"`
	EventKey   string `json:"event_key,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	Reason     string `json:"reason,omitempty"`
	HTTPStatus int    `json:"-"`
}

// Pipeline ingests webhook requests. Stateless per request: concurrent
// requests coordinate only through the store's unique-key constraint.
type Pipeline struct {
	gate      *gate.Gate
	verifier  *signature.Verifier
	store     EventStore
	projector Projector
	sink      metrics.Sink
	hub       *ws.Hub
	logger    *slog.Logger
	timeout   time.Duration
}

func NewPipeline(
	g *gate.Gate,
	v *signature.Verifier,
	st EventStore,
	p Projector,
	sink metrics.Sink,
	hub *ws.Hub,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		gate:      g,
		verifier:  v,
		store:     st,
		projector: p,
		sink:      sink,
		hub:       hub,
		logger:    logger,
		timeout:   15 * time.Second,
	}
}

// Process ingests one raw webhook request for a provider. It never
// returns an error: every failure mode maps to an Outcome, and any
// outcome that stored an event acknowledges with 200 so providers do not
// retry permanent mismatches forever.
func (p *Pipeline) Process(ctx context.Context, provider string, body []byte, timestamp, sig string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sigOutcome := p.verifier.Verify(provider, body, timestamp, sig)
	if !sigOutcome.Verified && p.verifier.Enforcing() {
		p.sink.Incr(ctx, metrics.MetricSignatureRejected, metrics.Labels{"provider": provider, "reason": sigOutcome.Reason})
		p.logger.Warn("webhook signature rejected",
			"provider", provider, "reason", sigOutcome.Reason)
		return Outcome{
			Status:     StatusSignatureRejected,
			Reason:     sigOutcome.Reason,
			HTTPStatus: http.StatusUnauthorized,
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		eventKey := contentHashKey(body)
		return p.deadLetterAtAdmission(ctx, provider, eventKey, "unknown", body, sigOutcome,
			domain.ReasonMalformedPayload, "payload is not a JSON object")
	}

	env, rejection := p.gate.Check(provider, payload)
	eventKey := env.EventID
	if eventKey == "" {
		eventKey = contentHashKey(body)
	}
	eventType := env.EventType
	if eventType == "" {
		eventType = "unknown"
	}

	if rejection != nil {
		out := p.deadLetterAtAdmission(ctx, provider, eventKey, eventType, body, sigOutcome,
			rejection.Reason, rejection.Detail)
		out.Reason = rejection.Reason
		return out
	}

	meta := domain.IngestionMeta{
		SchemaVersion:    env.SchemaVersion,
		SignatureOutcome: sigOutcome.Reason,
	}
	inserted, err := p.store.InsertEventIfAbsent(ctx, store.EventRecord{
		Provider:  provider,
		EventKey:  eventKey,
		EventType: eventType,
		Status:    domain.StatusProcessed,
		Payload:   body,
		Ingestion: meta,
	})
	if err != nil {
		// Storage faults are the one case the provider should retry.
		p.logger.Error("webhook persistence failed",
			"provider", provider, "event_key", eventKey, "error", err)
		return Outcome{Status: "error", EventKey: eventKey, HTTPStatus: http.StatusInternalServerError}
	}
	if !inserted {
		p.sink.Incr(ctx, metrics.MetricDuplicateIgnored, metrics.Labels{"provider": provider})
		p.publish(provider, eventKey, eventType, StatusDuplicateIgnored, "")
		return Outcome{
			Status:     StatusDuplicateIgnored,
			EventKey:   eventKey,
			EventType:  eventType,
			HTTPStatus: http.StatusOK,
		}
	}

	result, err := p.projector.Project(ctx, projector.Input{
		Provider:  provider,
		EventType: eventType,
		Payload:   payload,
		Raw:       body,
	})
	if err != nil {
		reason := projector.Classify(err)
		p.sink.Incr(ctx, metrics.MetricProjectionFailure, metrics.Labels{"provider": provider, "reason": reason})
		p.sink.Incr(ctx, metrics.MetricDeadLetter, metrics.Labels{"provider": provider, "reason": reason})
		if dlErr := p.store.MarkDeadLetter(ctx, provider, eventKey, reason, err.Error()); dlErr != nil {
			p.logger.Error("failed to dead-letter event",
				"provider", provider, "event_key", eventKey, "error", dlErr)
		}
		p.logger.Warn("webhook projection dead-lettered",
			"provider", provider, "event_key", eventKey, "reason", reason, "error", err)
		p.publish(provider, eventKey, eventType, StatusDeadLetter, reason)
		return Outcome{
			Status:     StatusDeadLetter,
			EventKey:   eventKey,
			EventType:  eventType,
			Reason:     reason,
			HTTPStatus: http.StatusOK,
		}
	}

	if result.OrgID != "" {
		orgID, companyID := result.OrgID, result.CompanyID
		if err := p.store.SetEventTenant(ctx, provider, eventKey, &orgID, &companyID); err != nil {
			p.logger.Error("failed to record event tenant",
				"provider", provider, "event_key", eventKey, "error", err)
		}
	}

	p.sink.Incr(ctx, metrics.MetricAdmitted, metrics.Labels{"provider": provider})
	p.publish(provider, eventKey, eventType, StatusProcessed, "")
	p.logger.Info("webhook processed",
		"provider", provider, "event_key", eventKey, "event_type", eventType)
	return Outcome{
		Status:     StatusProcessed,
		EventKey:   eventKey,
		EventType:  eventType,
		HTTPStatus: http.StatusOK,
	}
}

// deadLetterAtAdmission stores an event directly in the dead-letter state
// and acknowledges. Gate rejections never surface as errors to the
// provider; a permanent shape mismatch must not be retried forever.
func (p *Pipeline) deadLetterAtAdmission(
	ctx context.Context,
	provider, eventKey, eventType string,
	body []byte,
	sigOutcome signature.Outcome,
	reason, detail string,
) Outcome {
	switch reason {
	case domain.ReasonSchemaInvalid:
		p.sink.Incr(ctx, metrics.MetricSchemaInvalid, metrics.Labels{"provider": provider})
	case domain.ReasonVersionUnsupported:
		p.sink.Incr(ctx, metrics.MetricVersionUnsupported, metrics.Labels{"provider": provider})
	}
	p.sink.Incr(ctx, metrics.MetricDeadLetter, metrics.Labels{"provider": provider, "reason": reason})

	payload := body
	if !json.Valid(payload) {
		// Preserve the raw bytes of an unparseable body as a JSON string.
		encoded, err := json.Marshal(string(body))
		if err != nil {
			encoded = []byte(`""`)
		}
		payload = encoded
	}

	reasonCopy := reason
	detailCopy := detail
	_, err := p.store.InsertEventIfAbsent(ctx, store.EventRecord{
		Provider:  provider,
		EventKey:  eventKey,
		EventType: eventType,
		Status:    domain.StatusDeadLetter,
		Payload:   payload,
		Ingestion: domain.IngestionMeta{
			SignatureOutcome: sigOutcome.Reason,
			DeadLetterReason: reason,
		},
		DeadLetterReason: &reasonCopy,
		LastError:        &detailCopy,
	})
	if err != nil {
		p.logger.Error("failed to store dead-letter event",
			"provider", provider, "event_key", eventKey, "reason", reason, "error", err)
		return Outcome{Status: "error", EventKey: eventKey, HTTPStatus: http.StatusInternalServerError}
	}

	p.logger.Warn("webhook dead-lettered at admission",
		"provider", provider, "event_key", eventKey, "reason", reason, "detail", detail)
	p.publish(provider, eventKey, eventType, StatusDeadLetter, reason)
	return Outcome{
		Status:     StatusDeadLetter,
		EventKey:   eventKey,
		EventType:  eventType,
		Reason:     reason,
		HTTPStatus: http.StatusOK,
	}
}

func (p *Pipeline) publish(provider, eventKey, eventType, status, reason string) {
	if p.hub == nil {
		return
	}
	p.hub.Publish(ws.StatusEvent{
		Kind:      "ingest",
		Provider:  provider,
		EventKey:  eventKey,
		EventType: eventType,
		Status:    status,
		Reason:    reason,
	})
}

// contentHashKey derives a deterministic event key for payloads without
// an explicit event id, so retried deliveries of the same body dedupe.
func contentHashKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
