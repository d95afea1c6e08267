package domain

import (
	"context"
	"time"
)

const (
	RevocationTargetAnchor  = "anchor"
	RevocationTargetReceipt = "receipt"
)

// RevocationEntry marks an anchor or receipt as no longer trustworthy. The
// underlying record is never deleted; reads touching a revoked identifier
// must surface the revocation instead of silently succeeding.
type RevocationEntry struct {
	TenantID   string
	TargetType string
	TargetID   string
	Reason     string
	RevokedAt  time.Time
}

type RevocationRepository interface {
	Revoke(ctx context.Context, entry RevocationEntry) error
	// ListByTargets returns entries matching any of the given target IDs.
	ListByTargets(ctx context.Context, tenantID string, targetIDs []string) ([]RevocationEntry, error)
	IsRevoked(ctx context.Context, tenantID, targetID string) (bool, error)
}

type RevocationEpochRepository interface {
	BumpEpoch(ctx context.Context, tenantID string) (int64, error)
	GetEpoch(ctx context.Context, tenantID string) (int64, error)
}
