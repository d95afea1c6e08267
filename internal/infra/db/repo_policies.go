package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ledgerd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Upsert appends a policy version. An existing (tenant_id, version) row is
// left untouched so retained versions never change under a historical bundle.
func (r *PolicyRepository) Upsert(ctx context.Context, policy domain.AnchorPolicy) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if policy.TenantID == "" || policy.Version == "" {
		return errors.New("tenant_id and version are required")
	}
	allowlist, err := marshalPathList(policy.Allowlist)
	if err != nil {
		return err
	}
	denylist, err := marshalPathList(policy.Denylist)
	if err != nil {
		return err
	}
	createdAt := policy.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := PolicyModel{
		TenantID:      policy.TenantID,
		Version:       policy.Version,
		AllowlistJSON: allowlist,
		DenylistJSON:  denylist,
		Salt:          stringPtrIfNotEmpty(policy.Salt),
		CreatedAt:     createdAt.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

// Active returns the most recently appended version for a tenant.
func (r *PolicyRepository) Active(ctx context.Context, tenantID string) (domain.AnchorPolicy, error) {
	if r.db == nil {
		return domain.AnchorPolicy{}, errDBUnavailable
	}
	if tenantID == "" {
		return domain.AnchorPolicy{}, errors.New("tenant_id is required")
	}
	var model PolicyModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AnchorPolicy{}, domain.ErrPolicyNotFound
		}
		return domain.AnchorPolicy{}, err
	}
	return policyFromModel(model)
}

func (r *PolicyRepository) GetVersion(ctx context.Context, tenantID, version string) (domain.AnchorPolicy, error) {
	if r.db == nil {
		return domain.AnchorPolicy{}, errDBUnavailable
	}
	if tenantID == "" || version == "" {
		return domain.AnchorPolicy{}, errors.New("tenant_id and version are required")
	}
	var model PolicyModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND version = ?", tenantID, version).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AnchorPolicy{}, domain.ErrPolicyNotFound
		}
		return domain.AnchorPolicy{}, err
	}
	return policyFromModel(model)
}

func policyFromModel(model PolicyModel) (domain.AnchorPolicy, error) {
	allowlist, err := unmarshalPathList(model.AllowlistJSON)
	if err != nil {
		return domain.AnchorPolicy{}, err
	}
	denylist, err := unmarshalPathList(model.DenylistJSON)
	if err != nil {
		return domain.AnchorPolicy{}, err
	}
	return domain.AnchorPolicy{
		TenantID:  model.TenantID,
		Version:   model.Version,
		Allowlist: allowlist,
		Denylist:  denylist,
		Salt:      stringValue(model.Salt),
		CreatedAt: model.CreatedAt.UTC(),
	}, nil
}

func marshalPathList(paths []string) ([]byte, error) {
	if paths == nil {
		paths = []string{}
	}
	return json.Marshal(paths)
}

func unmarshalPathList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var paths []string
	if err := json.Unmarshal(raw, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}
