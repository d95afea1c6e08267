package domain

import "time"

const (
	// AuditSystemTenantID is the reserved tenant identifier for global audit events.
	AuditSystemTenantID = "__system__"
	AuditChainVersion   = "audit_chain_v1"
)

type AuditActorType string

const (
	AuditActorSystem      AuditActorType = "system"
	AuditActorAdminAPIKey AuditActorType = "admin_api_key"
	AuditActorService     AuditActorType = "service"
)

type AuditEventType string

const (
	AuditEventPolicyUpserted   AuditEventType = "policy_upserted"
	AuditEventArtifactRevoked  AuditEventType = "artifact_revoked"
	AuditEventBundleRehydrated AuditEventType = "bundle_rehydrated"
	AuditEventAnchorCreated    AuditEventType = "anchor_created"
)

type AuditTargetType string

const (
	AuditTargetPolicy  AuditTargetType = "policy"
	AuditTargetAnchor  AuditTargetType = "anchor"
	AuditTargetReceipt AuditTargetType = "receipt"
	AuditTargetBundle  AuditTargetType = "bundle"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditEvent is one link of the per-tenant hash chain over control-plane
// operations. EventHash covers the previous event's hash, so the chain is
// tamper-evident end to end.
type AuditEvent struct {
	ID            string
	TenantID      string
	Seq           int64
	EventType     AuditEventType
	Payload       any
	PayloadHash   string
	ActorType     AuditActorType
	ActorIDHash   string
	TargetType    AuditTargetType
	TargetID      string
	Result        AuditResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
