package domain

import (
	"encoding/json"
	"time"
)

// Provider slugs for which webhook ingestion is supported.
const (
	ProviderSmartlead  = "smartlead"
	ProviderHeyreach   = "heyreach"
	ProviderLob        = "lob"
	ProviderEmailbison = "emailbison"
)

// KnownProvider reports whether the slug names a supported webhook provider.
func KnownProvider(slug string) bool {
	switch slug {
	case ProviderSmartlead, ProviderHeyreach, ProviderLob, ProviderEmailbison:
		return true
	}
	return false
}

// Webhook event lifecycle statuses.
const (
	StatusProcessed  = "processed"
	StatusReplayed   = "replayed"
	StatusFailed     = "failed"
	StatusDeadLetter = "dead_letter"
)

// Dead-letter reasons. The first three are admission-time classifications,
// the last two come from the projector.
const (
	ReasonSchemaInvalid        = "schema_invalid"
	ReasonVersionUnsupported   = "version_unsupported"
	ReasonMalformedPayload     = "malformed_payload"
	ReasonProjectionUnresolved = "projection_unresolved"
	ReasonProjectionFailure    = "projection_failure"
)

// IngestionMeta is the `_ingestion` annotation stored alongside each event:
// what the gate and verifier saw at admission time.
type IngestionMeta struct {
	SchemaVersion    string `json:"schema_version,omitempty"`
	SignatureOutcome string `json:"signature_outcome,omitempty"`
	DeadLetterReason string `json:"dead_letter_reason,omitempty"`
}

// WebhookEvent is one admitted inbound notification. Rows are never
// deleted; they are the audit trail for dedupe, dead-lettering and replay.
type WebhookEvent struct {
	ID               string          `json:"id"`
	Provider         string          `json:"provider_slug"`
	EventKey         string          `json:"event_key"`
	EventType        string          `json:"event_type"`
	Status           string          `json:"status"`
	OrgID            *string         `json:"org_id,omitempty"`
	CompanyID        *string         `json:"company_id,omitempty"`
	Payload          json.RawMessage `json:"payload"`
	Ingestion        IngestionMeta   `json:"_ingestion"`
	DeadLetterReason *string         `json:"dead_letter_reason,omitempty"`
	ReplayCount      int             `json:"replay_count"`
	DuplicateCount   int             `json:"duplicate_count"`
	LastReplayAt     *time.Time      `json:"last_replay_at,omitempty"`
	LastError        *string         `json:"last_error,omitempty"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Campaign is the local row a provider campaign event projects onto.
type Campaign struct {
	ID                 string `json:"id"`
	OrgID              string `json:"org_id"`
	CompanyID          string `json:"company_id"`
	ProviderID         string `json:"provider_id"`
	ExternalCampaignID string `json:"external_campaign_id"`
	Status             string `json:"status"`
}

// MailPiece is the local row a direct-mail tracking event projects onto.
type MailPiece struct {
	ID              string `json:"id"`
	OrgID           string `json:"org_id"`
	CompanyID       string `json:"company_id"`
	ExternalPieceID string `json:"external_piece_id"`
	Type            string `json:"type"`
	Status          string `json:"status"`
}

// MessageRecord carries one inbound/outbound message upsert, keyed by
// the provider's external message id so reapplying is idempotent.
type MessageRecord struct {
	OrgID             string
	CompanyID         string
	CampaignID        string
	LeadID            *string
	ProviderID        string
	ExternalMessageID string
	ExternalLeadID    *string
	Direction         string
	Subject           *string
	Body              *string
	SentAt            *string
	RawPayload        []byte
}

// ProviderConfig is what the entitlement resolver yields for an org and
// provider: the credentials/config any outbound call must use.
type ProviderConfig struct {
	OrgID    string          `json:"org_id"`
	Provider string          `json:"provider_slug"`
	Enabled  bool            `json:"enabled"`
	Config   json.RawMessage `json:"config"`
}
