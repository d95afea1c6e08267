package db

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RevocationRepository struct {
	db *gorm.DB
}

func NewRevocationRepository(db *gorm.DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke records a revocation. Revoking the same target twice keeps the
// original entry; the record itself is never deleted.
func (r *RevocationRepository) Revoke(ctx context.Context, entry domain.RevocationEntry) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if entry.TenantID == "" || entry.TargetID == "" {
		return errors.New("tenant_id and target_id are required")
	}
	if entry.TargetType != domain.RevocationTargetAnchor && entry.TargetType != domain.RevocationTargetReceipt {
		return errors.New("target_type must be anchor or receipt")
	}
	revokedAt := entry.RevokedAt
	if revokedAt.IsZero() {
		revokedAt = time.Now().UTC()
	}
	model := RevocationModel{
		TenantID:   entry.TenantID,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Reason:     entry.Reason,
		RevokedAt:  revokedAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func (r *RevocationRepository) ListByTargets(ctx context.Context, tenantID string, targetIDs []string) ([]domain.RevocationEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if tenantID == "" {
		return nil, errors.New("tenant_id is required")
	}
	if len(targetIDs) == 0 {
		return nil, nil
	}
	var models []RevocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND target_id IN ?", tenantID, targetIDs).
		Order("revoked_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RevocationEntry, 0, len(models))
	for _, model := range models {
		out = append(out, domain.RevocationEntry{
			TenantID:   model.TenantID,
			TargetType: model.TargetType,
			TargetID:   model.TargetID,
			Reason:     model.Reason,
			RevokedAt:  model.RevokedAt.UTC(),
		})
	}
	return out, nil
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, tenantID, targetID string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	if tenantID == "" || targetID == "" {
		return false, errors.New("tenant_id and target_id are required")
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&RevocationModel{}).
		Where("tenant_id = ? AND target_id = ?", tenantID, targetID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
