package db

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishQueueRepository is the durable retry queue for external publishes.
// Tasks survive restarts; workers claim due rows and either mark them
// published or reschedule them with backoff.
type PublishQueueRepository struct {
	db *gorm.DB
}

func NewPublishQueueRepository(db *gorm.DB) *PublishQueueRepository {
	return &PublishQueueRepository{db: db}
}

func (r *PublishQueueRepository) Enqueue(ctx context.Context, task domain.PublishTask) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if task.AnchorID == "" || task.Provider == "" {
		return errors.New("anchor_id and provider are required")
	}
	if task.AnchorHash == "" {
		return errors.New("anchor_hash is required")
	}
	status := task.Status
	if status == "" {
		status = domain.PublishStatusPending
	}
	nextAttempt := task.NextAttemptAt
	if nextAttempt.IsZero() {
		nextAttempt = time.Now().UTC()
	}

	model := PublishTaskModel{
		AnchorID:      task.AnchorID,
		TenantID:      task.TenantID,
		Provider:      task.Provider,
		AnchorHash:    task.AnchorHash,
		Status:        status,
		Attempts:      task.Attempts,
		NextAttemptAt: nextAttempt.UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	// One task per (anchor, provider); re-enqueueing is a no-op.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func (r *PublishQueueRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.PublishTask, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.PublishStatusPending, now.UTC()).
		Order("next_attempt_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []PublishTaskModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PublishTask, 0, len(models))
	for _, model := range models {
		out = append(out, publishTaskFromModel(model))
	}
	return out, nil
}

func (r *PublishQueueRepository) MarkPublished(ctx context.Context, taskID int64) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Model(&PublishTaskModel{}).
		Where("id = ?", taskID).
		Update("status", domain.PublishStatusPublished).Error
}

func (r *PublishQueueRepository) Reschedule(ctx context.Context, taskID int64, attempts int, nextAttemptAt time.Time, errorCode string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Model(&PublishTaskModel{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt.UTC(),
			"last_error_code": stringPtrIfNotEmpty(errorCode),
		}).Error
}

func (r *PublishQueueRepository) MarkExhausted(ctx context.Context, taskID int64, errorCode string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Model(&PublishTaskModel{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":          domain.PublishStatusExhausted,
			"last_error_code": stringPtrIfNotEmpty(errorCode),
		}).Error
}

func publishTaskFromModel(model PublishTaskModel) domain.PublishTask {
	return domain.PublishTask{
		ID:            model.ID,
		AnchorID:      model.AnchorID,
		TenantID:      model.TenantID,
		Provider:      model.Provider,
		AnchorHash:    model.AnchorHash,
		Status:        model.Status,
		Attempts:      model.Attempts,
		NextAttemptAt: model.NextAttemptAt.UTC(),
		LastErrorCode: stringValue(model.LastErrorCode),
		CreatedAt:     model.CreatedAt.UTC(),
	}
}

type PublishAttemptRepository struct {
	db *gorm.DB
}

func NewPublishAttemptRepository(db *gorm.DB) *PublishAttemptRepository {
	return &PublishAttemptRepository{db: db}
}

func (r *PublishAttemptRepository) Append(ctx context.Context, attempt domain.PublishAttempt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if attempt.AnchorID == "" || attempt.Provider == "" {
		return errors.New("anchor_id and provider are required")
	}
	if attempt.Status == "" {
		return errors.New("status is required")
	}
	model := PublishAttemptModel{
		AnchorID:            attempt.AnchorID,
		TenantID:            attempt.TenantID,
		Provider:            attempt.Provider,
		Status:              attempt.Status,
		ErrorCode:           stringPtrIfNotEmpty(attempt.ErrorCode),
		ProviderReceiptJSON: copyBytes(attempt.ProviderReceiptJSON),
		CreatedAt:           time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *PublishAttemptRepository) ListByAnchor(ctx context.Context, anchorID string) ([]domain.PublishAttempt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if anchorID == "" {
		return nil, errors.New("anchor_id is required")
	}
	var models []PublishAttemptModel
	if err := r.db.WithContext(ctx).
		Where("anchor_id = ?", anchorID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PublishAttempt, 0, len(models))
	for _, model := range models {
		out = append(out, domain.PublishAttempt{
			AnchorID:            model.AnchorID,
			TenantID:            model.TenantID,
			Provider:            model.Provider,
			Status:              model.Status,
			ErrorCode:           stringValue(model.ErrorCode),
			ProviderReceiptJSON: copyBytes(model.ProviderReceiptJSON),
			CreatedAt:           model.CreatedAt.UTC(),
		})
	}
	return out, nil
}
