package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ledgerd/internal/domain"
)

const activePolicyTTL = 30 * time.Second

// PolicyService owns the versioned selective-disclosure policies. Writes are
// gated by the admission engine; reads fall back to the deny-all default when
// a tenant has no policy, so disclosure fails closed.
type PolicyService struct {
	Policies  domain.PolicyRepository
	Cache     PolicyCache
	Admission domain.AdmissionEngine
	Audit     AuditEventRepository
}

func NewPolicyService(policies domain.PolicyRepository, cache PolicyCache, admission domain.AdmissionEngine, audit AuditEventRepository) *PolicyService {
	return &PolicyService{
		Policies:  policies,
		Cache:     cache,
		Admission: admission,
		Audit:     audit,
	}
}

func (s *PolicyService) Upsert(ctx context.Context, policy domain.AnchorPolicy, actorIDHash string) error {
	if s == nil || s.Policies == nil {
		return errors.New("policy repository is required")
	}
	if err := validatePolicy(policy); err != nil {
		return err
	}
	if s.Admission != nil {
		decision, err := s.Admission.Admit(ctx, map[string]any{
			"actor":     actorIDHash,
			"action":    "policy_upsert",
			"tenant_id": policy.TenantID,
			"policy": map[string]any{
				"version":   policy.Version,
				"allowlist": toAnySlice(policy.Allowlist),
				"denylist":  toAnySlice(policy.Denylist),
				"has_salt":  policy.Salt != "",
			},
		})
		if err != nil {
			return fmt.Errorf("admission: %w", err)
		}
		if !decision.Allow {
			return fmt.Errorf("%w: %s", domain.ErrForbidden, strings.Join(decision.Reasons, "; "))
		}
	}
	if err := s.Policies.Upsert(ctx, policy); err != nil {
		return err
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, policy.TenantID)
	}
	s.audit(ctx, policy, actorIDHash)
	return nil
}

// Active resolves the tenant's current policy through the cache. A tenant
// with no configured policy gets the deny-all default.
func (s *PolicyService) Active(ctx context.Context, tenantID string) (domain.AnchorPolicy, error) {
	if s == nil || s.Policies == nil {
		return domain.AnchorPolicy{}, errors.New("policy repository is required")
	}
	if tenantID == "" {
		return domain.AnchorPolicy{}, errors.New("tenant_id is required")
	}
	if s.Cache != nil {
		if cached, ok, err := s.Cache.Get(ctx, tenantID); err == nil && ok {
			return *cached, nil
		}
	}
	policy, err := s.Policies.Active(ctx, tenantID)
	if errors.Is(err, domain.ErrPolicyNotFound) {
		return domain.DefaultPolicy(tenantID), nil
	}
	if err != nil {
		return domain.AnchorPolicy{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.Put(ctx, tenantID, policy, activePolicyTTL); err != nil {
			log.Printf("policy service: cache put: %v", err)
		}
	}
	return policy, nil
}

// GetVersion fetches a retained version for re-issuing historical bundles.
func (s *PolicyService) GetVersion(ctx context.Context, tenantID, version string) (domain.AnchorPolicy, error) {
	if s == nil || s.Policies == nil {
		return domain.AnchorPolicy{}, errors.New("policy repository is required")
	}
	return s.Policies.GetVersion(ctx, tenantID, version)
}

func (s *PolicyService) audit(ctx context.Context, policy domain.AnchorPolicy, actorIDHash string) {
	if s.Audit == nil {
		return
	}
	if _, err := s.Audit.Append(ctx, domain.AuditEvent{
		TenantID:  policy.TenantID,
		EventType: domain.AuditEventPolicyUpserted,
		Payload: map[string]any{
			"version":        policy.Version,
			"allowlist_size": len(policy.Allowlist),
			"denylist_size":  len(policy.Denylist),
			"has_salt":       policy.Salt != "",
		},
		ActorType:   domain.AuditActorAdminAPIKey,
		ActorIDHash: actorIDHash,
		TargetType:  domain.AuditTargetPolicy,
		TargetID:    policy.TenantID + "/" + policy.Version,
		Result:      domain.AuditResultSuccess,
	}); err != nil {
		log.Printf("policy service: audit append: %v", err)
	}
}

func validatePolicy(policy domain.AnchorPolicy) error {
	if policy.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if policy.Version == "" {
		return errors.New("version is required")
	}
	for _, path := range append(append([]string{}, policy.Allowlist...), policy.Denylist...) {
		if strings.TrimSpace(path) == "" {
			return errors.New("policy paths must be non-empty")
		}
	}
	return nil
}

func toAnySlice(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}
