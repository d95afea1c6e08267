package usecase

import (
	"context"
	"errors"
	"log"
	"time"

	"ledgerd/internal/domain"
)

// RevocationService appends revocation entries and bumps the tenant's
// revocation epoch so cached rehydrations can be invalidated.
type RevocationService struct {
	Revocations domain.RevocationRepository
	Epochs      domain.RevocationEpochRepository
	Audit       AuditEventRepository
	Now         func() time.Time
}

func NewRevocationService(revocations domain.RevocationRepository, epochs domain.RevocationEpochRepository, audit AuditEventRepository) *RevocationService {
	return &RevocationService{
		Revocations: revocations,
		Epochs:      epochs,
		Audit:       audit,
		Now:         time.Now,
	}
}

// Revoke records the entry and returns the tenant's new revocation epoch.
func (s *RevocationService) Revoke(ctx context.Context, entry domain.RevocationEntry, actorIDHash string) (int64, error) {
	if s == nil || s.Revocations == nil {
		return 0, errors.New("revocation repository is required")
	}
	if entry.TenantID == "" || entry.TargetID == "" {
		return 0, errors.New("tenant_id and target_id are required")
	}
	if entry.TargetType != domain.RevocationTargetAnchor && entry.TargetType != domain.RevocationTargetReceipt {
		return 0, errors.New("target_type must be anchor or receipt")
	}
	if entry.RevokedAt.IsZero() {
		entry.RevokedAt = s.now()
	}
	if err := s.Revocations.Revoke(ctx, entry); err != nil {
		return 0, err
	}

	var epoch int64
	if s.Epochs != nil {
		var err error
		epoch, err = s.Epochs.BumpEpoch(ctx, entry.TenantID)
		if err != nil {
			return 0, err
		}
	}
	s.audit(ctx, entry, actorIDHash, epoch)
	return epoch, nil
}

func (s *RevocationService) IsRevoked(ctx context.Context, tenantID, targetID string) (bool, error) {
	if s == nil || s.Revocations == nil {
		return false, errors.New("revocation repository is required")
	}
	return s.Revocations.IsRevoked(ctx, tenantID, targetID)
}

func (s *RevocationService) audit(ctx context.Context, entry domain.RevocationEntry, actorIDHash string, epoch int64) {
	if s.Audit == nil {
		return
	}
	if _, err := s.Audit.Append(ctx, domain.AuditEvent{
		TenantID:  entry.TenantID,
		EventType: domain.AuditEventArtifactRevoked,
		Payload: map[string]any{
			"target_type": entry.TargetType,
			"target_id":   entry.TargetID,
			"reason":      entry.Reason,
			"epoch":       epoch,
		},
		ActorType:   domain.AuditActorAdminAPIKey,
		ActorIDHash: actorIDHash,
		TargetType:  auditTargetForRevocation(entry.TargetType),
		TargetID:    entry.TargetID,
		Result:      domain.AuditResultSuccess,
	}); err != nil {
		log.Printf("revocation service: audit append: %v", err)
	}
}

func auditTargetForRevocation(targetType string) domain.AuditTargetType {
	if targetType == domain.RevocationTargetReceipt {
		return domain.AuditTargetReceipt
	}
	return domain.AuditTargetAnchor
}

func (s *RevocationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
