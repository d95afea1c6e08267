package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Anchor commits to an ordered batch of receipts via a Merkle root over their
// payload hashes. The member ordering is part of the anchor's identity.
type Anchor struct {
	AnchorID   string
	TenantID   string
	AnchorHash string
	MemberIDs  []string
	CreatedAt  time.Time
}

// Proof records one successful publication of an anchor hash, either to the
// internal ledger or to an external notary. Proofs are append-only; a failed
// publish retries by creating a new attempt, never by mutating a prior proof.
type Proof struct {
	AnchorID     string
	Provider     string
	ProviderRef  string
	URL          string
	SigningKeyID string
	PublishedAt  time.Time
}

const ProofProviderInternal = "internal"

const (
	PublishStatusPending   = "pending"
	PublishStatusPublished = "published"
	PublishStatusExhausted = "exhausted"
)

const (
	PublishErrorNetwork       = "NETWORK"
	PublishErrorRateLimit     = "RATE_LIMIT"
	PublishErrorBadConfig     = "BAD_CONFIG"
	PublishErrorProviderError = "PROVIDER_ERROR"
	PublishErrorProvider5xx   = "PROVIDER_5XX"
	PublishErrorPersistence   = "PERSISTENCE"
	PublishErrorTimeout       = "TIMEOUT"
)

// PublishTask is one durable external-publish obligation. Tasks survive
// process restarts; workers claim due tasks and either record a proof or
// reschedule with backoff.
type PublishTask struct {
	ID            int64
	AnchorID      string
	TenantID      string
	Provider      string
	AnchorHash    string
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastErrorCode string
	CreatedAt     time.Time
}

// PublishAttempt is the append-only history of publish attempts, recorded
// whether or not the attempt succeeded.
type PublishAttempt struct {
	AnchorID            string
	TenantID            string
	Provider            string
	Status              string
	ErrorCode           string
	ProviderReceiptJSON json.RawMessage
	CreatedAt           time.Time
}

type AnchorRepository interface {
	// Commit persists the anchor, its member rows, and the anchor_id
	// transition on every member receipt as one atomic operation. A member
	// that is missing or already anchored aborts the whole commit, so a
	// retry after a failure sees every member still unanchored.
	Commit(ctx context.Context, anchor Anchor) error
	Get(ctx context.Context, anchorID string) (Anchor, error)
	// GetByReceipt resolves the anchor containing a receipt, or ErrNotFound.
	GetByReceipt(ctx context.Context, tenantID, receiptID string) (Anchor, error)
}

type ProofRepository interface {
	// Append records a proof. Re-appending the same (anchor_id, provider,
	// provider_ref) is a no-op.
	Append(ctx context.Context, proof Proof) error
	ListByAnchor(ctx context.Context, anchorID string) ([]Proof, error)
}

type PublishQueueRepository interface {
	Enqueue(ctx context.Context, task PublishTask) error
	// Due returns pending tasks whose next_attempt_at has passed.
	Due(ctx context.Context, now time.Time, limit int) ([]PublishTask, error)
	MarkPublished(ctx context.Context, taskID int64) error
	Reschedule(ctx context.Context, taskID int64, attempts int, nextAttemptAt time.Time, errorCode string) error
	MarkExhausted(ctx context.Context, taskID int64, errorCode string) error
}

type PublishAttemptRepository interface {
	Append(ctx context.Context, attempt PublishAttempt) error
	ListByAnchor(ctx context.Context, anchorID string) ([]PublishAttempt, error)
}
