package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
)

// EventRecord holds data for admitting a webhook event.
type EventRecord struct {
	Provider         string
	EventKey         string
	EventType        string
	Status           string
	OrgID            *string
	CompanyID        *string
	Payload          []byte
	Ingestion        domain.IngestionMeta
	DeadLetterReason *string
	LastError        *string
}

const eventColumns = `id, provider_slug, event_key, event_type, status, org_id, company_id,
	payload, ingestion, dead_letter_reason, replay_count, duplicate_count,
	last_replay_at, last_error, processed_at, created_at`

func scanEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	var ingestion []byte
	err := row.Scan(
		&ev.ID, &ev.Provider, &ev.EventKey, &ev.EventType, &ev.Status,
		&ev.OrgID, &ev.CompanyID, &ev.Payload, &ingestion, &ev.DeadLetterReason,
		&ev.ReplayCount, &ev.DuplicateCount, &ev.LastReplayAt, &ev.LastError,
		&ev.ProcessedAt, &ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(ingestion) > 0 {
		if err := json.Unmarshal(ingestion, &ev.Ingestion); err != nil {
			return nil, fmt.Errorf("decoding ingestion annotation: %w", err)
		}
	}
	return &ev, nil
}

// InsertEventIfAbsent atomically admits an event against the unique
// (provider_slug, event_key) constraint. Returns false when the row
// already existed; the duplicate admission only bumps the audit counter,
// it never re-applies side effects.
func (s *PostgresStore) InsertEventIfAbsent(ctx context.Context, rec EventRecord) (bool, error) {
	ingestion, err := json.Marshal(rec.Ingestion)
	if err != nil {
		return false, fmt.Errorf("encoding ingestion annotation: %w", err)
	}

	var processedAt *time.Time
	if rec.Status == domain.StatusProcessed {
		now := time.Now().UTC()
		processedAt = &now
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events
			(provider_slug, event_key, event_type, status, org_id, company_id,
			 payload, ingestion, dead_letter_reason, last_error, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider_slug, event_key) DO NOTHING
	`, rec.Provider, rec.EventKey, rec.EventType, rec.Status, rec.OrgID, rec.CompanyID,
		rec.Payload, ingestion, rec.DeadLetterReason, rec.LastError, processedAt)
	if err != nil {
		return false, fmt.Errorf("inserting webhook event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		_, err := s.pool.Exec(ctx, `
			UPDATE webhook_events SET duplicate_count = duplicate_count + 1
			WHERE provider_slug = $1 AND event_key = $2
		`, rec.Provider, rec.EventKey)
		if err != nil {
			return false, fmt.Errorf("recording duplicate admission: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// GetEvent returns one event, or nil when it does not exist.
func (s *PostgresStore) GetEvent(ctx context.Context, provider, eventKey string) (*domain.WebhookEvent, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE provider_slug = $1 AND event_key = $2`,
		provider, eventKey,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying webhook event: %w", err)
	}
	return ev, nil
}

// EventFilter selects events for listing and query-replay. Limit is a
// hard cap enforced by the caller.
type EventFilter struct {
	Provider         string
	OrgID            string
	CompanyID        string
	EventType        string
	Status           string
	DeadLetterReason string
	From             *time.Time
	To               *time.Time
	Limit            int
}

// ListEvents returns events matching the filter, newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, f EventFilter) ([]domain.WebhookEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM webhook_events`
	args := []interface{}{}
	conditions := []string{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.Provider != "" {
		add("provider_slug = $%d", f.Provider)
	}
	if f.OrgID != "" {
		add("org_id = $%d", f.OrgID)
	}
	if f.CompanyID != "" {
		add("company_id = $%d", f.CompanyID)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DeadLetterReason != "" {
		add("dead_letter_reason = $%d", f.DeadLetterReason)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook event: %w", err)
		}
		events = append(events, *ev)
	}

	if events == nil {
		events = []domain.WebhookEvent{}
	}
	return events, nil
}

// SetEventTenant records the tenant an event resolved to after a
// successful projection.
func (s *PostgresStore) SetEventTenant(ctx context.Context, provider, eventKey string, orgID, companyID *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events SET org_id = $3, company_id = $4
		WHERE provider_slug = $1 AND event_key = $2
	`, provider, eventKey, orgID, companyID)
	if err != nil {
		return fmt.Errorf("setting event tenant: %w", err)
	}
	return nil
}

// MarkDeadLetter routes an already-stored event to the dead-letter state.
func (s *PostgresStore) MarkDeadLetter(ctx context.Context, provider, eventKey, reason, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = $3, dead_letter_reason = $4, last_error = $5,
		    ingestion = jsonb_set(COALESCE(ingestion, '{}'::jsonb), '{dead_letter_reason}', to_jsonb($4::text))
		WHERE provider_slug = $1 AND event_key = $2
	`, provider, eventKey, domain.StatusDeadLetter, reason, errMsg)
	if err != nil {
		return fmt.Errorf("marking event dead-letter: %w", err)
	}
	return nil
}

// MarkReplayed records a successful replay. This is the only transition
// out of dead_letter.
func (s *PostgresStore) MarkReplayed(ctx context.Context, provider, eventKey string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = $3, replay_count = replay_count + 1,
		    last_replay_at = NOW(), processed_at = NOW(),
		    last_error = NULL, dead_letter_reason = NULL
		WHERE provider_slug = $1 AND event_key = $2
	`, provider, eventKey, domain.StatusReplayed)
	if err != nil {
		return fmt.Errorf("marking event replayed: %w", err)
	}
	return nil
}

// MarkReplayFailed records a failed replay attempt. A dead-lettered event
// stays dead_letter so it remains visible to dead-letter tooling; any
// other status becomes failed.
func (s *PostgresStore) MarkReplayFailed(ctx context.Context, provider, eventKey, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = CASE WHEN status = $3 THEN status ELSE $4 END,
		    replay_count = replay_count + 1,
		    last_replay_at = NOW(), last_error = $5
		WHERE provider_slug = $1 AND event_key = $2
	`, provider, eventKey, domain.StatusDeadLetter, domain.StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("marking event replay-failed: %w", err)
	}
	return nil
}
