package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/merkle"
	"ledgerd/internal/infra/metrics"

	"github.com/google/uuid"
)

// AnchorBatcher periodically folds unanchored receipts into Merkle anchors.
// A batch is cut when the interval elapses or a tenant's pending count
// reaches the threshold, whichever comes first.
type AnchorBatcher struct {
	Receipts  domain.ReceiptRepository
	Anchors   domain.AnchorRepository
	Proofs    domain.ProofRepository
	Queue     domain.PublishQueueRepository
	Audit     AuditEventRepository
	Metrics   *metrics.Metrics
	Providers []string

	Interval   time.Duration
	Threshold  int
	BatchLimit int
	Now        func() time.Time
	NewID      func() string
}

func NewAnchorBatcher(
	receipts domain.ReceiptRepository,
	anchors domain.AnchorRepository,
	proofs domain.ProofRepository,
	queue domain.PublishQueueRepository,
	audit AuditEventRepository,
	m *metrics.Metrics,
	providers []string,
	interval time.Duration,
	threshold int,
) (*AnchorBatcher, error) {
	if receipts == nil || anchors == nil || proofs == nil {
		return nil, errors.New("receipt, anchor, and proof repositories are required")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if threshold <= 0 {
		threshold = 64
	}
	return &AnchorBatcher{
		Receipts:   receipts,
		Anchors:    anchors,
		Proofs:     proofs,
		Queue:      queue,
		Audit:      audit,
		Metrics:    m,
		Providers:  providers,
		Interval:   interval,
		Threshold:  threshold,
		BatchLimit: threshold,
		Now:        time.Now,
		NewID:      uuid.NewString,
	}, nil
}

// Run drives the batcher until the context ends. The threshold is checked on
// a faster cadence than the flush interval so a burst of receipts doesn't
// wait out the full interval.
func (b *AnchorBatcher) Run(ctx context.Context) error {
	checkEvery := b.Interval / 10
	if checkEvery < time.Second {
		checkEvery = time.Second
	}
	flush := time.NewTicker(b.Interval)
	check := time.NewTicker(checkEvery)
	defer flush.Stop()
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flush.C:
			if err := b.RunOnce(ctx); err != nil {
				log.Printf("anchor batcher: flush: %v", err)
			}
		case <-check.C:
			if err := b.runThreshold(ctx); err != nil {
				log.Printf("anchor batcher: threshold check: %v", err)
			}
		}
	}
}

// RunOnce batches every tenant with pending receipts, regardless of count.
func (b *AnchorBatcher) RunOnce(ctx context.Context) error {
	counts, err := b.Receipts.CountUnanchored(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range sortedTenants(counts) {
		if counts[tenantID] <= 0 {
			continue
		}
		if err := b.BatchTenant(ctx, tenantID); err != nil {
			log.Printf("anchor batcher: tenant %s: %v", tenantID, err)
		}
	}
	return nil
}

func (b *AnchorBatcher) runThreshold(ctx context.Context) error {
	counts, err := b.Receipts.CountUnanchored(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range sortedTenants(counts) {
		if counts[tenantID] < int64(b.Threshold) {
			if b.Metrics != nil {
				b.Metrics.UnanchoredReceipts.WithLabelValues(tenantID).Set(float64(counts[tenantID]))
			}
			continue
		}
		if err := b.BatchTenant(ctx, tenantID); err != nil {
			log.Printf("anchor batcher: tenant %s: %v", tenantID, err)
		}
	}
	return nil
}

// BatchTenant anchors one batch of the tenant's oldest unanchored receipts.
// The anchor row and the member transitions land in one commit, so a failed
// batch leaves every receipt unanchored and the retry re-batches the same
// set under a fresh anchor id.
func (b *AnchorBatcher) BatchTenant(ctx context.Context, tenantID string) error {
	receipts, err := b.Receipts.ListUnanchored(ctx, tenantID, b.BatchLimit)
	if err != nil {
		return err
	}
	if len(receipts) == 0 {
		return nil
	}

	leaves := make([][]byte, 0, len(receipts))
	memberIDs := make([]string, 0, len(receipts))
	for _, receipt := range receipts {
		leaf, err := hex.DecodeString(receipt.PayloadHash)
		if err != nil {
			return fmt.Errorf("decode payload hash for receipt %s: %w", receipt.ReceiptID, err)
		}
		leaves = append(leaves, leaf)
		memberIDs = append(memberIDs, receipt.ReceiptID)
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return fmt.Errorf("compute merkle root: %w", err)
	}

	now := b.now()
	anchor := domain.Anchor{
		AnchorID:   b.newID(),
		TenantID:   tenantID,
		AnchorHash: hex.EncodeToString(root),
		MemberIDs:  memberIDs,
		CreatedAt:  now,
	}
	if err := b.Anchors.Commit(ctx, anchor); err != nil {
		return fmt.Errorf("commit anchor: %w", err)
	}

	// Internal ledger proof is synchronous; external providers go through
	// the durable publish queue.
	internalProof := domain.Proof{
		AnchorID:    anchor.AnchorID,
		Provider:    domain.ProofProviderInternal,
		ProviderRef: anchor.AnchorID,
		PublishedAt: now,
	}
	if err := b.Proofs.Append(ctx, internalProof); err != nil {
		return fmt.Errorf("append internal proof: %w", err)
	}
	if b.Queue != nil {
		for _, provider := range b.Providers {
			task := domain.PublishTask{
				AnchorID:   anchor.AnchorID,
				TenantID:   tenantID,
				Provider:   provider,
				AnchorHash: anchor.AnchorHash,
				Status:     domain.PublishStatusPending,
			}
			if err := b.Queue.Enqueue(ctx, task); err != nil {
				return fmt.Errorf("enqueue publish task for %s: %w", provider, err)
			}
		}
	}

	if b.Metrics != nil {
		b.Metrics.AnchorsCreated.Inc()
		b.Metrics.AnchorBatchSize.Observe(float64(len(memberIDs)))
		// BatchLimit may leave receipts pending, so re-count instead of
		// assuming the tenant drained to zero.
		if counts, err := b.Receipts.CountUnanchored(ctx); err == nil {
			b.Metrics.UnanchoredReceipts.WithLabelValues(tenantID).Set(float64(counts[tenantID]))
		}
	}
	if b.Audit != nil {
		if _, err := b.Audit.Append(ctx, domain.AuditEvent{
			TenantID:  tenantID,
			EventType: domain.AuditEventAnchorCreated,
			Payload: map[string]any{
				"anchor_id":    anchor.AnchorID,
				"anchor_hash":  anchor.AnchorHash,
				"member_count": len(memberIDs),
			},
			ActorType:  domain.AuditActorSystem,
			TargetType: domain.AuditTargetAnchor,
			TargetID:   anchor.AnchorID,
			Result:     domain.AuditResultSuccess,
		}); err != nil {
			log.Printf("anchor batcher: audit append: %v", err)
		}
	}
	log.Printf("anchor batcher: tenant %s anchored %d receipts as %s", tenantID, len(memberIDs), anchor.AnchorID)
	return nil
}

func (b *AnchorBatcher) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *AnchorBatcher) newID() string {
	if b.NewID != nil {
		return b.NewID()
	}
	return uuid.NewString()
}

func sortedTenants(counts map[string]int64) []string {
	tenants := make([]string, 0, len(counts))
	for tenantID := range counts {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants
}
