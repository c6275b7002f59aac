package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
)

// GetPieceByExternalID finds the local mail piece a tracking event refers
// to. Returns nil when no mapping exists yet.
func (s *PostgresStore) GetPieceByExternalID(ctx context.Context, externalID string) (*domain.MailPiece, error) {
	var p domain.MailPiece
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, company_id, external_piece_id, type, status
		FROM mail_pieces
		WHERE external_piece_id = $1 AND deleted_at IS NULL
	`, externalID).Scan(
		&p.ID, &p.OrgID, &p.CompanyID, &p.ExternalPieceID, &p.Type, &p.Status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolving mail piece: %w", err)
	}
	return &p, nil
}

// UpdatePieceStatus sets a mail piece's normalized tracking status.
func (s *PostgresStore) UpdatePieceStatus(ctx context.Context, id, status string, raw []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE mail_pieces
		SET status = $2, raw_payload = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, raw)
	if err != nil {
		return fmt.Errorf("updating mail piece status: %w", err)
	}
	return nil
}

// GetEntitlement returns the provider config an org is entitled to, or
// nil when the org has no entitlement for the provider.
func (s *PostgresStore) GetEntitlement(ctx context.Context, orgID, provider string) (*domain.ProviderConfig, error) {
	var pc domain.ProviderConfig
	err := s.pool.QueryRow(ctx, `
		SELECT e.org_id, p.slug, e.enabled, e.config
		FROM provider_entitlements e
		JOIN providers p ON p.id = e.provider_id
		WHERE e.org_id = $1 AND p.slug = $2
	`, orgID, provider).Scan(&pc.OrgID, &pc.Provider, &pc.Enabled, &pc.Config)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying entitlement: %w", err)
	}
	return &pc, nil
}
