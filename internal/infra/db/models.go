package db

import "time"

type ReceiptModel struct {
	ID          int64     `gorm:"primaryKey"`
	TenantID    string    `gorm:"uniqueIndex:idx_receipts_tenant_receipt;index;not null"`
	ReceiptID   string    `gorm:"uniqueIndex:idx_receipts_tenant_receipt;not null"`
	PayloadJSON []byte    `gorm:"type:jsonb;not null"`
	PayloadHash string    `gorm:"index;not null"`
	AnchorID    *string   `gorm:"type:uuid;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (ReceiptModel) TableName() string {
	return "receipts"
}

type AnchorModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	TenantID    string    `gorm:"index;not null"`
	AnchorHash  string    `gorm:"index;not null"`
	MemberCount int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (AnchorModel) TableName() string {
	return "anchors"
}

type AnchorMemberModel struct {
	ID        int64  `gorm:"primaryKey"`
	AnchorID  string `gorm:"type:uuid;uniqueIndex:idx_anchor_members_position;index;not null"`
	Position  int    `gorm:"uniqueIndex:idx_anchor_members_position;not null"`
	ReceiptID string `gorm:"index;not null"`
	TenantID  string `gorm:"index;not null"`
}

func (AnchorMemberModel) TableName() string {
	return "anchor_members"
}

type ProofModel struct {
	ID           int64  `gorm:"primaryKey"`
	AnchorID     string `gorm:"type:uuid;uniqueIndex:idx_proofs_anchor_provider_ref;index;not null"`
	Provider     string `gorm:"uniqueIndex:idx_proofs_anchor_provider_ref;not null"`
	ProviderRef  string `gorm:"uniqueIndex:idx_proofs_anchor_provider_ref;not null"`
	URL          *string
	SigningKeyID *string
	PublishedAt  time.Time `gorm:"not null"`
}

func (ProofModel) TableName() string {
	return "proofs"
}

type PublishTaskModel struct {
	ID            int64     `gorm:"primaryKey"`
	AnchorID      string    `gorm:"type:uuid;uniqueIndex:idx_publish_tasks_anchor_provider;not null"`
	TenantID      string    `gorm:"index;not null"`
	Provider      string    `gorm:"uniqueIndex:idx_publish_tasks_anchor_provider;not null"`
	AnchorHash    string    `gorm:"not null"`
	Status        string    `gorm:"index;not null"`
	Attempts      int       `gorm:"not null"`
	NextAttemptAt time.Time `gorm:"index;not null"`
	LastErrorCode *string
	CreatedAt     time.Time `gorm:"not null"`
}

func (PublishTaskModel) TableName() string {
	return "publish_tasks"
}

type PublishAttemptModel struct {
	ID                  int64  `gorm:"primaryKey"`
	AnchorID            string `gorm:"type:uuid;index;not null"`
	TenantID            string `gorm:"not null"`
	Provider            string `gorm:"not null"`
	Status              string `gorm:"not null"`
	ErrorCode           *string
	ProviderReceiptJSON []byte    `gorm:"type:jsonb"`
	CreatedAt           time.Time `gorm:"not null"`
}

func (PublishAttemptModel) TableName() string {
	return "publish_attempts"
}

type PolicyModel struct {
	ID            int64  `gorm:"primaryKey"`
	TenantID      string `gorm:"uniqueIndex:idx_policies_tenant_version;index;not null"`
	Version       string `gorm:"uniqueIndex:idx_policies_tenant_version;not null"`
	AllowlistJSON []byte `gorm:"type:jsonb;not null"`
	DenylistJSON  []byte `gorm:"type:jsonb;not null"`
	Salt          *string
	CreatedAt     time.Time `gorm:"not null"`
}

func (PolicyModel) TableName() string {
	return "anchor_policies"
}

type RevocationModel struct {
	ID         int64  `gorm:"primaryKey"`
	TenantID   string `gorm:"uniqueIndex:idx_revocations_tenant_target;index;not null"`
	TargetType string `gorm:"not null"`
	TargetID   string `gorm:"uniqueIndex:idx_revocations_tenant_target;not null"`
	Reason     string
	RevokedAt  time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (RevocationModel) TableName() string {
	return "revocations"
}

type RevocationEpochModel struct {
	TenantID  string    `gorm:"primaryKey"`
	Epoch     int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RevocationEpochModel) TableName() string {
	return "tenant_revocation_epoch"
}

type TenantAuditSeqModel struct {
	TenantID string `gorm:"primaryKey"`
	Seq      int64  `gorm:"not null"`
}

func (TenantAuditSeqModel) TableName() string {
	return "tenant_audit_seq"
}

type AuditEventModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	TenantID      string `gorm:"type:text;index;not null"`
	Seq           int64  `gorm:"not null"`
	EventType     string `gorm:"column:event_type;not null"`
	PayloadJSON   []byte `gorm:"type:jsonb;not null"`
	PayloadHash   string `gorm:"not null"`
	ActorType     string `gorm:"not null"`
	ActorIDHash   *string
	TargetType    string `gorm:"not null"`
	TargetID      *string
	Result        string `gorm:"not null"`
	ErrorCode     *string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}
