package db

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProofRepository struct {
	db *gorm.DB
}

func NewProofRepository(db *gorm.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

// Append records one successful publication. The unique index over
// (anchor_id, provider, provider_ref) makes a retried publish a no-op, so a
// duplicate accepted publish never yields a second proof.
func (r *ProofRepository) Append(ctx context.Context, proof domain.Proof) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if proof.AnchorID == "" {
		return errors.New("anchor_id is required")
	}
	if proof.Provider == "" {
		return errors.New("provider is required")
	}
	if proof.ProviderRef == "" {
		return errors.New("provider_ref is required")
	}
	publishedAt := proof.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	model := ProofModel{
		AnchorID:     proof.AnchorID,
		Provider:     proof.Provider,
		ProviderRef:  proof.ProviderRef,
		URL:          stringPtrIfNotEmpty(proof.URL),
		SigningKeyID: stringPtrIfNotEmpty(proof.SigningKeyID),
		PublishedAt:  publishedAt.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func (r *ProofRepository) ListByAnchor(ctx context.Context, anchorID string) ([]domain.Proof, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if anchorID == "" {
		return nil, errors.New("anchor_id is required")
	}
	var models []ProofModel
	if err := r.db.WithContext(ctx).
		Where("anchor_id = ?", anchorID).
		Order("published_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Proof, 0, len(models))
	for _, model := range models {
		out = append(out, domain.Proof{
			AnchorID:     model.AnchorID,
			Provider:     model.Provider,
			ProviderRef:  model.ProviderRef,
			URL:          stringValue(model.URL),
			SigningKeyID: stringValue(model.SigningKeyID),
			PublishedAt:  model.PublishedAt.UTC(),
		})
	}
	return out, nil
}
