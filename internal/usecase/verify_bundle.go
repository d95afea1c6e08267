package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/canon"
	"ledgerd/internal/infra/merkle"
)

// VerifyBundle checks an evidence bundle entirely offline: the Merkle root is
// recomputed from the member payload hashes, each masked record is checked
// against its commitment, and inclusion proofs are replayed. A non-nil
// checker adds a live revocation lookup; nil skips it.
func VerifyBundle(ctx context.Context, bundle domain.EvidenceBundle, checker RevocationChecker) domain.VerificationResult {
	var reasons []string

	if bundle.Version == "" || bundle.AnchorID == "" || bundle.AnchorHash == "" || len(bundle.CanonicalInputs) == 0 {
		reasons = append(reasons, domain.VerifyFailInvalidBundle)
		return domain.VerificationResult{OK: false, Reasons: reasons}
	}

	leaves := make([][]byte, 0, len(bundle.CanonicalInputs))
	valid := true
	for _, input := range bundle.CanonicalInputs {
		leaf, err := hex.DecodeString(input.PayloadHash)
		if err != nil || len(leaf) != merkle.HashSize {
			reasons = append(reasons, domain.VerifyFailInvalidBundle)
			valid = false
			break
		}
		leaves = append(leaves, leaf)
	}

	if valid {
		root, err := merkle.Root(leaves)
		if err != nil {
			reasons = append(reasons, domain.VerifyFailInvalidBundle)
		} else if hex.EncodeToString(root) != bundle.AnchorHash {
			reasons = append(reasons, domain.VerifyFailAnchorHashMismatch)
		} else {
			reasons = append(reasons, verifyInclusionProofs(bundle, leaves, root)...)
		}
	}

	reasons = append(reasons, verifyMaskedRecords(bundle)...)
	reasons = append(reasons, verifyProofs(bundle)...)
	reasons = append(reasons, verifyRevocations(ctx, bundle, checker)...)

	return domain.VerificationResult{OK: len(reasons) == 0, Reasons: reasons}
}

func verifyInclusionProofs(bundle domain.EvidenceBundle, leaves [][]byte, root []byte) []string {
	var reasons []string
	for _, input := range bundle.CanonicalInputs {
		if len(input.InclusionProof) == 0 {
			continue
		}
		path := make([][]byte, 0, len(input.InclusionProof))
		ok := true
		for _, encoded := range input.InclusionProof {
			sibling, err := hex.DecodeString(encoded)
			if err != nil || len(sibling) != merkle.HashSize {
				ok = false
				break
			}
			path = append(path, sibling)
		}
		if !ok || input.LeafIndex < 0 || input.LeafIndex >= len(leaves) {
			reasons = append(reasons, domain.VerifyFailInclusionInvalid)
			return reasons
		}
		verified, err := merkle.VerifyInclusionProof(leaves[input.LeafIndex], input.LeafIndex, len(leaves), path, root)
		if err != nil || !verified {
			reasons = append(reasons, domain.VerifyFailInclusionInvalid)
			return reasons
		}
	}
	return reasons
}

func verifyMaskedRecords(bundle domain.EvidenceBundle) []string {
	for _, input := range bundle.CanonicalInputs {
		if len(input.MaskedRecord) == 0 || input.MaskedRecordHash == "" {
			return []string{domain.VerifyFailMaskedRecordMismatch}
		}
		canonical, err := canon.CanonicalizeJSON(input.MaskedRecord)
		if err != nil {
			return []string{domain.VerifyFailMaskedRecordMismatch}
		}
		if !bytes.Equal(canonical, []byte(input.MaskedRecord)) {
			// Masked records are stored canonically; accept equivalent
			// encodings but hash the canonical form.
			log.Printf("verify bundle: masked record for %s was not canonical", input.ReceiptID)
		}
		sum := sha256.Sum256(canonical)
		if hex.EncodeToString(sum[:]) != input.MaskedRecordHash {
			return []string{domain.VerifyFailMaskedRecordMismatch}
		}
	}
	return nil
}

func verifyProofs(bundle domain.EvidenceBundle) []string {
	for _, proof := range bundle.Proofs {
		if proof.ProviderRef != "" && proof.Provider != "" {
			return nil
		}
	}
	return []string{domain.VerifyFailNoProof}
}

func verifyRevocations(ctx context.Context, bundle domain.EvidenceBundle, checker RevocationChecker) []string {
	if bundle.Revoked || len(bundle.Revocations) > 0 {
		return []string{domain.VerifyFailRevoked}
	}
	if checker == nil {
		return nil
	}
	targets := []string{bundle.AnchorID}
	for _, input := range bundle.CanonicalInputs {
		targets = append(targets, input.ReceiptID)
	}
	for _, target := range targets {
		revoked, err := checker.IsRevoked(ctx, bundle.TenantID, target)
		if err != nil {
			// Live registry is best-effort; unreachable means skipped.
			log.Printf("verify bundle: live revocation check: %v", err)
			return nil
		}
		if revoked {
			return []string{domain.VerifyFailRevoked}
		}
	}
	return nil
}
