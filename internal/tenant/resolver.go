// Package tenant resolves which provider credentials/config an org is
// entitled to. The webhook engine never reads tenant credentials
// directly; it goes through this boundary.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
)

// ErrNotEntitled is returned when the org has no enabled entitlement for
// the provider.
var ErrNotEntitled = errors.New("org is not entitled to provider")

// Resolver yields the provider config for an org.
type Resolver interface {
	Resolve(ctx context.Context, orgID, provider string) (*domain.ProviderConfig, error)
}

// EntitlementStore is the persistence surface the store-backed resolver
// needs.
type EntitlementStore interface {
	GetEntitlement(ctx context.Context, orgID, provider string) (*domain.ProviderConfig, error)
}

// StoreResolver resolves entitlements from the database.
type StoreResolver struct {
	store EntitlementStore
}

func NewStoreResolver(store EntitlementStore) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) Resolve(ctx context.Context, orgID, provider string) (*domain.ProviderConfig, error) {
	pc, err := r.store.GetEntitlement(ctx, orgID, provider)
	if err != nil {
		return nil, fmt.Errorf("resolving entitlement: %w", err)
	}
	if pc == nil || !pc.Enabled {
		return nil, fmt.Errorf("org %s provider %s: %w", orgID, provider, ErrNotEntitled)
	}
	return pc, nil
}
