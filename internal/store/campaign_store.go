package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
)

// ResolveCampaignByExternalID finds the local campaign a provider event
// refers to. Returns nil when no mapping exists yet.
func (s *PostgresStore) ResolveCampaignByExternalID(ctx context.Context, provider, externalID string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.org_id, c.company_id, c.provider_id, c.external_campaign_id, c.status
		FROM company_campaigns c
		JOIN providers p ON p.id = c.provider_id
		WHERE c.external_campaign_id = $1 AND p.slug = $2 AND c.deleted_at IS NULL
	`, externalID, provider).Scan(
		&c.ID, &c.OrgID, &c.CompanyID, &c.ProviderID, &c.ExternalCampaignID, &c.Status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolving campaign: %w", err)
	}
	return &c, nil
}

// UpdateCampaignStatus sets a campaign's normalized status. Setting an
// absolute value keeps reapplication idempotent.
func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id, orgID, status string, raw []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE company_campaigns
		SET status = $3, raw_payload = $4, updated_at = NOW()
		WHERE id = $1 AND org_id = $2
	`, id, orgID, status, raw)
	if err != nil {
		return fmt.Errorf("updating campaign status: %w", err)
	}
	return nil
}

// FindLead returns the local lead id for an external lead within a
// campaign, or "" when no mapping exists.
func (s *PostgresStore) FindLead(ctx context.Context, orgID, campaignID, externalLeadID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM company_campaign_leads
		WHERE org_id = $1 AND company_campaign_id = $2 AND external_lead_id = $3
		  AND deleted_at IS NULL
	`, orgID, campaignID, externalLeadID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("finding lead: %w", err)
	}
	return id, nil
}

// UpdateLeadStatus sets a lead's normalized status.
func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID, orgID, status string, raw []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE company_campaign_leads
		SET status = $3, raw_payload = $4, updated_at = NOW()
		WHERE id = $1 AND org_id = $2
	`, leadID, orgID, status, raw)
	if err != nil {
		return fmt.Errorf("updating lead status: %w", err)
	}
	return nil
}

// UpsertMessage inserts or updates a campaign message keyed by the
// provider's external message id, so replaying the same event converges
// on the same row.
func (s *PostgresStore) UpsertMessage(ctx context.Context, rec domain.MessageRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_campaign_messages
			(org_id, company_id, company_campaign_id, company_campaign_lead_id,
			 provider_id, external_message_id, external_lead_id, direction,
			 subject, body, sent_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (org_id, company_campaign_id, provider_id, external_message_id)
		DO UPDATE SET
			company_campaign_lead_id = EXCLUDED.company_campaign_lead_id,
			external_lead_id = EXCLUDED.external_lead_id,
			direction = EXCLUDED.direction,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			sent_at = EXCLUDED.sent_at,
			raw_payload = EXCLUDED.raw_payload,
			updated_at = NOW()
	`, rec.OrgID, rec.CompanyID, rec.CampaignID, rec.LeadID, rec.ProviderID,
		rec.ExternalMessageID, rec.ExternalLeadID, rec.Direction,
		rec.Subject, rec.Body, rec.SentAt, rec.RawPayload)
	if err != nil {
		return fmt.Errorf("upserting campaign message: %w", err)
	}
	return nil
}
