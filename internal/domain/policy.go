package domain

import (
	"context"
	"time"
)

// AnchorPolicy is a versioned selective-disclosure policy for one tenant.
// Versions are append-only; the active policy is the highest version. Prior
// versions are retained indefinitely so historical bundles stay reproducible.
type AnchorPolicy struct {
	TenantID  string
	Version   string
	Allowlist []string
	Denylist  []string
	Salt      string
	// DenyAll forces the fully-masked starting copy even with an empty
	// allowlist. Set on the fallback policy so an unconfigured tenant fails
	// closed.
	DenyAll   bool
	CreatedAt time.Time
}

// DefaultPolicy is the unmasking-disabled fallback used whenever a tenant has
// no policy configured: every field is hidden.
func DefaultPolicy(tenantID string) AnchorPolicy {
	return AnchorPolicy{
		TenantID: tenantID,
		Version:  "default-deny-all",
		DenyAll:  true,
	}
}

type PolicyRepository interface {
	// Upsert appends a policy version. Re-submitting an existing
	// (tenant_id, version) pair is a no-op, never an overwrite.
	Upsert(ctx context.Context, policy AnchorPolicy) error
	// Active returns the highest version for a tenant, or ErrPolicyNotFound.
	Active(ctx context.Context, tenantID string) (AnchorPolicy, error)
	// GetVersion returns a specific retained version, or ErrPolicyNotFound.
	GetVersion(ctx context.Context, tenantID, version string) (AnchorPolicy, error)
}

// AdmissionDecision is the opaque result of an external policy-decision
// source gating control-plane writes. Only the boolean and reasons are
// interpreted here.
type AdmissionDecision struct {
	Allow   bool
	Reasons []string
}

type AdmissionEngine interface {
	Admit(ctx context.Context, input map[string]any) (AdmissionDecision, error)
}
