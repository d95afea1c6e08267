package db

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiptRepository enforces WORM semantics: rows are inserted once and never
// updated or deleted here. The single permitted transition, setting anchor_id
// on an unanchored row, happens inside AnchorRepository.Commit.
type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Put(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	if r.db == nil {
		return domain.Receipt{}, errDBUnavailable
	}
	if receipt.TenantID == "" {
		return domain.Receipt{}, errors.New("tenant_id is required")
	}
	if receipt.ReceiptID == "" {
		return domain.Receipt{}, errors.New("receipt_id is required")
	}
	if receipt.PayloadHash == "" {
		return domain.Receipt{}, errors.New("payload_hash is required")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	} else {
		receipt.CreatedAt = receipt.CreatedAt.UTC()
	}

	model := ReceiptModel{
		TenantID:    receipt.TenantID,
		ReceiptID:   receipt.ReceiptID,
		PayloadJSON: copyBytes(receipt.Payload),
		PayloadHash: receipt.PayloadHash,
		CreatedAt:   receipt.CreatedAt,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return domain.Receipt{}, result.Error
	}
	if result.RowsAffected == 0 {
		return domain.Receipt{}, domain.ErrDuplicateReceipt
	}
	return receipt, nil
}

func (r *ReceiptRepository) Get(ctx context.Context, tenantID, receiptID string) (domain.Receipt, error) {
	if r.db == nil {
		return domain.Receipt{}, errDBUnavailable
	}
	if tenantID == "" || receiptID == "" {
		return domain.Receipt{}, errors.New("tenant_id and receipt_id are required")
	}
	var model ReceiptModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND receipt_id = ?", tenantID, receiptID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Receipt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Receipt{}, err
	}
	return receiptFromModel(model), nil
}

func (r *ReceiptRepository) ListUnanchored(ctx context.Context, tenantID string, limit int) ([]domain.Receipt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if tenantID == "" {
		return nil, errors.New("tenant_id is required")
	}
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND anchor_id IS NULL", tenantID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []ReceiptModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Receipt, 0, len(models))
	for _, model := range models {
		out = append(out, receiptFromModel(model))
	}
	return out, nil
}

func (r *ReceiptRepository) CountUnanchored(ctx context.Context) (map[string]int64, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	type row struct {
		TenantID string
		Pending  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&ReceiptModel{}).
		Select("tenant_id, COUNT(*) AS pending").
		Where("anchor_id IS NULL").
		Group("tenant_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.TenantID] = r.Pending
	}
	return out, nil
}

func receiptFromModel(model ReceiptModel) domain.Receipt {
	return domain.Receipt{
		ReceiptID:   model.ReceiptID,
		TenantID:    model.TenantID,
		Payload:     copyBytes(model.PayloadJSON),
		PayloadHash: model.PayloadHash,
		AnchorID:    stringValue(model.AnchorID),
		CreatedAt:   model.CreatedAt.UTC(),
	}
}
