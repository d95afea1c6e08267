package usecase

import (
	"context"
	"time"

	"ledgerd/internal/domain"
)

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByTenant(ctx context.Context, tenantID string) ([]domain.AuditEvent, error)
}

// PolicyCache fronts active-policy lookups so ingest and rehydrate don't hit
// the policy table on every request. Upserts invalidate the tenant's entry.
type PolicyCache interface {
	Get(ctx context.Context, tenantID string) (*domain.AnchorPolicy, bool, error)
	Put(ctx context.Context, tenantID string, value domain.AnchorPolicy, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID string)
}

// RevocationChecker is the optional live registry consulted during bundle
// verification. A nil checker skips the live check; the embedded revocation
// statements still apply.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tenantID, targetID string) (bool, error)
}
