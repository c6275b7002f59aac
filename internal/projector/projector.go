// Package projector maps validated provider events onto local entity
// state: campaign/lead/message rows for outreach providers, mail-piece
// tracking for direct mail. Projections are idempotent; reapplying the
// same event converges on the same state.
package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/gate"
	"github.com/bencrane/outbound-engine-x-api/internal/tenant"
)

// CampaignStore is the persistence surface for outreach projections.
type CampaignStore interface {
	ResolveCampaignByExternalID(ctx context.Context, provider, externalID string) (*domain.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id, orgID, status string, raw []byte) error
	FindLead(ctx context.Context, orgID, campaignID, externalLeadID string) (string, error)
	UpdateLeadStatus(ctx context.Context, leadID, orgID, status string, raw []byte) error
	UpsertMessage(ctx context.Context, rec domain.MessageRecord) error
}

// PieceStore is the persistence surface for direct-mail projections.
type PieceStore interface {
	GetPieceByExternalID(ctx context.Context, externalID string) (*domain.MailPiece, error)
	UpdatePieceStatus(ctx context.Context, id, status string, raw []byte) error
}

// Input is one validated event to project.
type Input struct {
	Provider  string
	EventType string
	Payload   map[string]any
	Raw       json.RawMessage
}

// Result reports the tenant the event resolved to.
type Result struct {
	OrgID     string
	CompanyID string
}

// Projector applies events to local state.
type Projector struct {
	campaigns    CampaignStore
	pieces       PieceStore
	entitlements tenant.Resolver
	logger       *slog.Logger
}

func New(campaigns CampaignStore, pieces PieceStore, entitlements tenant.Resolver, logger *slog.Logger) *Projector {
	return &Projector{
		campaigns:    campaigns,
		pieces:       pieces,
		entitlements: entitlements,
		logger:       logger,
	}
}

// Project applies one event. A domain.ErrUnresolved-wrapped error means
// the referenced entity has no local mapping yet (dead-letter as
// projection_unresolved); any other error is a projection_failure.
// Neither crashes the pipeline.
func (p *Projector) Project(ctx context.Context, in Input) (Result, error) {
	if in.Provider == domain.ProviderLob {
		return p.projectMailPiece(ctx, in)
	}
	return p.projectOutreach(ctx, in)
}

// Classify maps a projection error onto its dead-letter reason.
func Classify(err error) string {
	if errors.Is(err, domain.ErrUnresolved) || errors.Is(err, tenant.ErrNotEntitled) {
		return domain.ReasonProjectionUnresolved
	}
	return domain.ReasonProjectionFailure
}

func (p *Projector) projectMailPiece(ctx context.Context, in Input) (Result, error) {
	pieceID, ok := gate.FirstString(in.Payload, "piece.id", "piece_id", "resource.id", "resource_id", "id")
	if !ok {
		return Result{}, fmt.Errorf("no mail piece reference in payload: %w", domain.ErrUnresolved)
	}

	piece, err := p.pieces.GetPieceByExternalID(ctx, pieceID)
	if err != nil {
		return Result{}, fmt.Errorf("looking up mail piece %s: %w", pieceID, err)
	}
	if piece == nil {
		return Result{}, fmt.Errorf("mail piece %s has no local mapping: %w", pieceID, domain.ErrUnresolved)
	}

	if _, err := p.entitlements.Resolve(ctx, piece.OrgID, in.Provider); err != nil {
		return Result{}, err
	}

	status := domain.NormalizeMailPieceStatus(in.EventType)
	if status == "unknown" {
		if raw, ok := gate.FirstString(in.Payload, "status", "tracking_status"); ok {
			status = domain.NormalizeMailPieceStatus(raw)
		}
	}
	if status == "unknown" {
		p.logger.Warn("mail piece event carries no recognizable status",
			"provider", in.Provider, "event_type", in.EventType, "piece_id", pieceID)
		return Result{OrgID: piece.OrgID, CompanyID: piece.CompanyID}, nil
	}

	if err := p.pieces.UpdatePieceStatus(ctx, piece.ID, status, in.Raw); err != nil {
		return Result{}, fmt.Errorf("applying mail piece status: %w", err)
	}
	return Result{OrgID: piece.OrgID, CompanyID: piece.CompanyID}, nil
}

func (p *Projector) projectOutreach(ctx context.Context, in Input) (Result, error) {
	campaignExternalID, ok := gate.FirstString(in.Payload, "campaign_id", "campaignId", "campaign.id", "campaign.campaignId")
	if !ok {
		return Result{}, fmt.Errorf("no campaign reference in payload: %w", domain.ErrUnresolved)
	}

	campaign, err := p.campaigns.ResolveCampaignByExternalID(ctx, in.Provider, campaignExternalID)
	if err != nil {
		return Result{}, fmt.Errorf("resolving campaign %s: %w", campaignExternalID, err)
	}
	if campaign == nil {
		return Result{}, fmt.Errorf("campaign %s has no local mapping: %w", campaignExternalID, domain.ErrUnresolved)
	}

	if _, err := p.entitlements.Resolve(ctx, campaign.OrgID, in.Provider); err != nil {
		return Result{}, err
	}

	if status, ok := extractCampaignStatus(in.Payload); ok {
		normalized := domain.NormalizeCampaignStatus(status)
		if err := p.campaigns.UpdateCampaignStatus(ctx, campaign.ID, campaign.OrgID, normalized, in.Raw); err != nil {
			return Result{}, fmt.Errorf("applying campaign status: %w", err)
		}
	}

	var localLeadID *string
	if leadExternalID, ok := gate.FirstString(in.Payload, "lead_id", "leadId", "lead.id", "lead.leadId"); ok {
		id, err := p.campaigns.FindLead(ctx, campaign.OrgID, campaign.ID, leadExternalID)
		if err != nil {
			return Result{}, fmt.Errorf("finding lead %s: %w", leadExternalID, err)
		}
		if id != "" {
			localLeadID = &id
			if status, ok := extractLeadStatus(in.Payload); ok {
				normalized := domain.NormalizeLeadStatus(status)
				if err := p.campaigns.UpdateLeadStatus(ctx, id, campaign.OrgID, normalized, in.Raw); err != nil {
					return Result{}, fmt.Errorf("applying lead status: %w", err)
				}
			}
		}
	}

	if err := p.upsertMessage(ctx, campaign, localLeadID, in); err != nil {
		return Result{}, err
	}

	return Result{OrgID: campaign.OrgID, CompanyID: campaign.CompanyID}, nil
}

func (p *Projector) upsertMessage(ctx context.Context, campaign *domain.Campaign, localLeadID *string, in Input) error {
	messageID, ok := gate.FirstString(in.Payload, "message_id", "messageId", "email_stats_id", "id")
	if !ok {
		return nil
	}

	rec := domain.MessageRecord{
		OrgID:             campaign.OrgID,
		CompanyID:         campaign.CompanyID,
		CampaignID:        campaign.ID,
		LeadID:            localLeadID,
		ProviderID:        campaign.ProviderID,
		ExternalMessageID: messageID,
		Direction:         directionForEventType(in.EventType),
		RawPayload:        in.Raw,
	}
	if leadID, ok := gate.FirstString(in.Payload, "lead_id", "leadId", "lead.id"); ok {
		rec.ExternalLeadID = &leadID
	}
	if subject, ok := gate.FirstString(in.Payload, "subject"); ok {
		rec.Subject = &subject
	}
	if body, ok := gate.FirstString(in.Payload, "email_body", "body", "message"); ok {
		rec.Body = &body
	}
	if sentAt, ok := gate.FirstString(in.Payload, "sent_at", "created_at"); ok {
		rec.SentAt = &sentAt
	}

	if err := p.campaigns.UpsertMessage(ctx, rec); err != nil {
		return fmt.Errorf("upserting message %s: %w", messageID, err)
	}
	return nil
}

// directionForEventType infers message direction from the event type:
// reply events are inbound, send events outbound.
func directionForEventType(eventType string) string {
	lower := strings.ToLower(eventType)
	switch {
	case strings.Contains(lower, "reply") || strings.Contains(lower, "replied"):
		return domain.NormalizeMessageDirection("inbound")
	case strings.Contains(lower, "message") || strings.Contains(lower, "sent"):
		return domain.NormalizeMessageDirection("outbound")
	}
	return domain.NormalizeMessageDirection("")
}

func extractCampaignStatus(payload map[string]any) (string, bool) {
	if v, ok := gate.FirstString(payload, "campaign_status", "campaignStatus"); ok {
		return v, true
	}
	if raw, ok := gate.FirstString(payload, "status"); ok && looksLikeCampaignStatus(raw) {
		return raw, true
	}
	return "", false
}

func extractLeadStatus(payload map[string]any) (string, bool) {
	if v, ok := gate.FirstString(payload, "lead_status", "leadStatus"); ok {
		return v, true
	}
	if raw, ok := gate.FirstString(payload, "status"); ok && looksLikeLeadStatus(raw) {
		return raw, true
	}
	return "", false
}

var campaignStatusWords = map[string]struct{}{
	"DRAFTED": {}, "DRAFT": {}, "ACTIVE": {}, "START": {}, "STARTED": {},
	"RUNNING": {}, "PAUSED": {}, "PAUSE": {}, "STOPPED": {}, "STOP": {},
	"COMPLETED": {}, "DONE": {},
}

var leadStatusWords = map[string]struct{}{
	"active": {}, "paused": {}, "pause": {}, "unsubscribed": {}, "unsubscribe": {},
	"replied": {}, "reply": {}, "bounced": {}, "bounce": {}, "pending": {},
	"contacted": {}, "connected": {}, "not_interested": {}, "not interested": {},
}

func looksLikeCampaignStatus(value string) bool {
	_, ok := campaignStatusWords[strings.ToUpper(strings.TrimSpace(value))]
	return ok
}

func looksLikeLeadStatus(value string) bool {
	_, ok := leadStatusWords[strings.ToLower(strings.TrimSpace(value))]
	return ok
}
