package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Receipt is the write-once record of a single operation. Payload bytes and
// the payload hash are fixed at ingestion and never change afterwards.
type Receipt struct {
	ReceiptID   string
	TenantID    string
	Payload     json.RawMessage
	PayloadHash string
	AnchorID    string
	CreatedAt   time.Time
}

func (r Receipt) Anchored() bool {
	return r.AnchorID != ""
}

type ReceiptRepository interface {
	// Put appends a receipt. Returns ErrDuplicateReceipt when the
	// (tenant_id, receipt_id) pair already exists; the stored row is left
	// untouched in that case.
	Put(ctx context.Context, receipt Receipt) (Receipt, error)
	Get(ctx context.Context, tenantID, receiptID string) (Receipt, error)
	// ListUnanchored returns receipts with no anchor in insertion order.
	ListUnanchored(ctx context.Context, tenantID string, limit int) ([]Receipt, error)
	// CountUnanchored reports pending receipts per tenant for the batcher's
	// threshold trigger.
	CountUnanchored(ctx context.Context) (map[string]int64, error)
}
