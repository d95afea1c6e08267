package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/canon"
	"ledgerd/internal/infra/masking"
	"ledgerd/internal/infra/merkle"
	"ledgerd/internal/infra/metrics"
)

// RehydrateService assembles self-contained evidence bundles. Everything a
// verifier needs (masked records, commitments, inclusion proofs, notary
// proofs, revocation state) travels inside the bundle.
type RehydrateService struct {
	Receipts    domain.ReceiptRepository
	Anchors     domain.AnchorRepository
	Proofs      domain.ProofRepository
	Policies    *PolicyService
	Revocations domain.RevocationRepository
	Epochs      domain.RevocationEpochRepository
	Audit       AuditEventRepository
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func NewRehydrateService(
	receipts domain.ReceiptRepository,
	anchors domain.AnchorRepository,
	proofs domain.ProofRepository,
	policies *PolicyService,
	revocations domain.RevocationRepository,
	epochs domain.RevocationEpochRepository,
	audit AuditEventRepository,
	m *metrics.Metrics,
) *RehydrateService {
	return &RehydrateService{
		Receipts:    receipts,
		Anchors:     anchors,
		Proofs:      proofs,
		Policies:    policies,
		Revocations: revocations,
		Epochs:      epochs,
		Audit:       audit,
		Metrics:     m,
		Now:         time.Now,
	}
}

// Rehydrate resolves an operation to its containing anchor and produces the
// bundle under the tenant's active policy, or under pinnedVersion when
// re-issuing a historical export.
func (s *RehydrateService) Rehydrate(ctx context.Context, tenantID, operationID, pinnedVersion string) (domain.EvidenceBundle, error) {
	if s == nil || s.Receipts == nil || s.Anchors == nil || s.Proofs == nil {
		return domain.EvidenceBundle{}, errors.New("receipt, anchor, and proof repositories are required")
	}
	if tenantID == "" || operationID == "" {
		return domain.EvidenceBundle{}, errors.New("tenant_id and operation_id are required")
	}

	if _, err := s.Receipts.Get(ctx, tenantID, operationID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EvidenceBundle{}, domain.ErrNoAnchorForOperation
		}
		return domain.EvidenceBundle{}, err
	}
	anchor, err := s.Anchors.GetByReceipt(ctx, tenantID, operationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EvidenceBundle{}, domain.ErrNoAnchorForOperation
		}
		return domain.EvidenceBundle{}, err
	}

	policy, err := s.resolvePolicy(ctx, tenantID, pinnedVersion)
	if err != nil {
		return domain.EvidenceBundle{}, err
	}

	inputs, leaves, warnings, err := s.buildInputs(ctx, anchor, policy)
	if err != nil {
		return domain.EvidenceBundle{}, err
	}
	if err := s.attachInclusionProofs(inputs, leaves); err != nil {
		return domain.EvidenceBundle{}, err
	}

	proofs, err := s.Proofs.ListByAnchor(ctx, anchor.AnchorID)
	if err != nil {
		return domain.EvidenceBundle{}, err
	}
	proofEntries := make([]domain.ProofEntry, 0, len(proofs))
	for _, proof := range proofs {
		proofEntries = append(proofEntries, domain.ProofEntry{
			AnchorID:     proof.AnchorID,
			Provider:     proof.Provider,
			ProviderRef:  proof.ProviderRef,
			URL:          proof.URL,
			SigningKeyID: proof.SigningKeyID,
			PublishedAt:  proof.PublishedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	statements, revoked, err := s.revocationState(ctx, anchor)
	if err != nil {
		return domain.EvidenceBundle{}, err
	}
	var epoch int64
	if s.Epochs != nil {
		epoch, err = s.Epochs.GetEpoch(ctx, tenantID)
		if err != nil {
			return domain.EvidenceBundle{}, err
		}
	}

	bundle := domain.EvidenceBundle{
		Version:         domain.EvidenceBundleVersion,
		AnchorID:        anchor.AnchorID,
		AnchorHash:      anchor.AnchorHash,
		TenantID:        tenantID,
		PolicyVersion:   policy.Version,
		CanonicalInputs: inputs,
		Proofs:          proofEntries,
		Revoked:         revoked,
		Revocations:     statements,
		RevocationEpoch: epoch,
		MaskWarnings:    warnings,
		GeneratedAt:     s.now().UTC().Format(time.RFC3339Nano),
	}

	if s.Metrics != nil {
		s.Metrics.BundlesRehydrated.Inc()
	}
	s.audit(ctx, tenantID, operationID, bundle)
	return bundle, nil
}

// ExportBundle renders a bundle as canonical bytes. Exporting the same
// bundle twice yields identical bytes.
func ExportBundle(bundle domain.EvidenceBundle) ([]byte, error) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}
	return canon.CanonicalizeJSON(raw)
}

func (s *RehydrateService) resolvePolicy(ctx context.Context, tenantID, pinnedVersion string) (domain.AnchorPolicy, error) {
	if s.Policies == nil {
		return domain.DefaultPolicy(tenantID), nil
	}
	if pinnedVersion != "" {
		return s.Policies.GetVersion(ctx, tenantID, pinnedVersion)
	}
	return s.Policies.Active(ctx, tenantID)
}

func (s *RehydrateService) buildInputs(ctx context.Context, anchor domain.Anchor, policy domain.AnchorPolicy) ([]domain.CanonicalInput, [][]byte, []string, error) {
	inputs := make([]domain.CanonicalInput, 0, len(anchor.MemberIDs))
	leaves := make([][]byte, 0, len(anchor.MemberIDs))
	var warnings []string

	for index, receiptID := range anchor.MemberIDs {
		receipt, err := s.Receipts.Get(ctx, anchor.TenantID, receiptID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load member %s: %w", receiptID, err)
		}
		leaf, err := hex.DecodeString(receipt.PayloadHash)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("decode payload hash for %s: %w", receiptID, err)
		}
		leaves = append(leaves, leaf)

		node, err := canon.Decode(receipt.Payload)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("decode payload for %s: %w", receiptID, err)
		}
		maskedNode, report := masking.Mask(node, policy)
		for _, path := range report.UnmatchedPaths {
			warnings = append(warnings, receiptID+": unmatched policy path "+path)
		}
		maskedBytes, err := canon.Encode(maskedNode)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode masked record for %s: %w", receiptID, err)
		}
		sum := sha256.Sum256(maskedBytes)

		inputs = append(inputs, domain.CanonicalInput{
			ReceiptID:        receiptID,
			PayloadHash:      receipt.PayloadHash,
			MaskedRecord:     maskedBytes,
			MaskedRecordHash: hex.EncodeToString(sum[:]),
			LeafIndex:        index,
		})
	}
	return inputs, leaves, warnings, nil
}

func (s *RehydrateService) attachInclusionProofs(inputs []domain.CanonicalInput, leaves [][]byte) error {
	for i := range inputs {
		path, err := merkle.InclusionProof(leaves, i)
		if err != nil {
			return fmt.Errorf("inclusion proof for leaf %d: %w", i, err)
		}
		encoded := make([]string, 0, len(path))
		for _, hash := range path {
			encoded = append(encoded, hex.EncodeToString(hash))
		}
		inputs[i].InclusionProof = encoded
	}
	return nil
}

func (s *RehydrateService) revocationState(ctx context.Context, anchor domain.Anchor) ([]domain.RevocationStatement, bool, error) {
	if s.Revocations == nil {
		return nil, false, nil
	}
	targets := append([]string{anchor.AnchorID}, anchor.MemberIDs...)
	entries, err := s.Revocations.ListByTargets(ctx, anchor.TenantID, targets)
	if err != nil {
		return nil, false, err
	}
	statements := make([]domain.RevocationStatement, 0, len(entries))
	for _, entry := range entries {
		statements = append(statements, domain.RevocationStatement{
			TargetType: entry.TargetType,
			TargetID:   entry.TargetID,
			Reason:     entry.Reason,
			RevokedAt:  entry.RevokedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	if len(statements) == 0 {
		return nil, false, nil
	}
	return statements, true, nil
}

func (s *RehydrateService) audit(ctx context.Context, tenantID, operationID string, bundle domain.EvidenceBundle) {
	if s.Audit == nil {
		return
	}
	if _, err := s.Audit.Append(ctx, domain.AuditEvent{
		TenantID:  tenantID,
		EventType: domain.AuditEventBundleRehydrated,
		Payload: map[string]any{
			"operation_id":   operationID,
			"anchor_id":      bundle.AnchorID,
			"policy_version": bundle.PolicyVersion,
			"member_count":   len(bundle.CanonicalInputs),
			"revoked":        bundle.Revoked,
		},
		ActorType:  domain.AuditActorService,
		TargetType: domain.AuditTargetBundle,
		TargetID:   bundle.AnchorID,
		Result:     domain.AuditResultSuccess,
	}); err != nil {
		log.Printf("rehydrate: audit append: %v", err)
	}
}

func (s *RehydrateService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
