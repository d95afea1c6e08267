package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnchorRepository struct {
	db *gorm.DB
}

func NewAnchorRepository(db *gorm.DB) *AnchorRepository {
	return &AnchorRepository{db: db}
}

func (r *AnchorRepository) Commit(ctx context.Context, anchor domain.Anchor) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if anchor.AnchorID == "" {
		return errors.New("anchor_id is required")
	}
	if anchor.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if anchor.AnchorHash == "" {
		return errors.New("anchor_hash is required")
	}
	if len(anchor.MemberIDs) == 0 {
		return errors.New("anchor requires at least one member")
	}
	createdAt := anchor.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := AnchorModel{
			ID:          anchor.AnchorID,
			TenantID:    anchor.TenantID,
			AnchorHash:  anchor.AnchorHash,
			MemberCount: len(anchor.MemberIDs),
			CreatedAt:   createdAt.UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
			return err
		}
		members := make([]AnchorMemberModel, 0, len(anchor.MemberIDs))
		for position, receiptID := range anchor.MemberIDs {
			members = append(members, AnchorMemberModel{
				AnchorID:  anchor.AnchorID,
				Position:  position,
				ReceiptID: receiptID,
				TenantID:  anchor.TenantID,
			})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error; err != nil {
			return err
		}
		result := tx.Model(&ReceiptModel{}).
			Where("tenant_id = ? AND receipt_id IN ? AND anchor_id IS NULL", anchor.TenantID, anchor.MemberIDs).
			Update("anchor_id", anchor.AnchorID)
		if result.Error != nil {
			return result.Error
		}
		// A short mark means a member vanished or was already claimed by
		// another anchor; rolling back keeps every member unanchored so a
		// retry batches them cleanly.
		if result.RowsAffected != int64(len(anchor.MemberIDs)) {
			return fmt.Errorf("anchor %s: marked %d of %d member receipts", anchor.AnchorID, result.RowsAffected, len(anchor.MemberIDs))
		}
		return nil
	})
}

func (r *AnchorRepository) Get(ctx context.Context, anchorID string) (domain.Anchor, error) {
	if r.db == nil {
		return domain.Anchor{}, errDBUnavailable
	}
	if anchorID == "" {
		return domain.Anchor{}, errors.New("anchor_id is required")
	}
	var model AnchorModel
	err := r.db.WithContext(ctx).Where("id = ?", anchorID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Anchor{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Anchor{}, err
	}
	return r.loadMembers(ctx, model)
}

func (r *AnchorRepository) GetByReceipt(ctx context.Context, tenantID, receiptID string) (domain.Anchor, error) {
	if r.db == nil {
		return domain.Anchor{}, errDBUnavailable
	}
	if tenantID == "" || receiptID == "" {
		return domain.Anchor{}, errors.New("tenant_id and receipt_id are required")
	}
	var member AnchorMemberModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND receipt_id = ?", tenantID, receiptID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Anchor{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Anchor{}, err
	}
	return r.Get(ctx, member.AnchorID)
}

func (r *AnchorRepository) loadMembers(ctx context.Context, model AnchorModel) (domain.Anchor, error) {
	var members []AnchorMemberModel
	if err := r.db.WithContext(ctx).
		Where("anchor_id = ?", model.ID).
		Order("position ASC").
		Find(&members).Error; err != nil {
		return domain.Anchor{}, err
	}
	memberIDs := make([]string, 0, len(members))
	for _, member := range members {
		memberIDs = append(memberIDs, member.ReceiptID)
	}
	return domain.Anchor{
		AnchorID:   model.ID,
		TenantID:   model.TenantID,
		AnchorHash: model.AnchorHash,
		MemberIDs:  memberIDs,
		CreatedAt:  model.CreatedAt.UTC(),
	}, nil
}
