package domain

import "encoding/json"

const EvidenceBundleVersion = "v1"

// EvidenceBundle is the self-contained artifact produced by rehydration.
// It is designed to be exported, transmitted, and verified fully offline.
// Field names are stable across versions.
type EvidenceBundle struct {
	Version         string                `json:"version"`
	AnchorID        string                `json:"anchor_id"`
	AnchorHash      string                `json:"anchor_hash"`
	TenantID        string                `json:"tenant_id"`
	PolicyVersion   string                `json:"policy_version"`
	CanonicalInputs []CanonicalInput      `json:"canonical_inputs"`
	Proofs          []ProofEntry          `json:"proofs"`
	Revoked         bool                  `json:"revoked"`
	Revocations     []RevocationStatement `json:"revocations,omitempty"`
	RevocationEpoch int64                 `json:"revocation_epoch,omitempty"`
	MaskWarnings    []string              `json:"mask_warnings,omitempty"`
	GeneratedAt     string                `json:"generated_at"`
}

// CanonicalInput carries one member receipt's masked view together with the
// commitments a verifier needs: the original payload hash (the anchor tree
// leaf) and the hash of the masked record's canonical bytes.
type CanonicalInput struct {
	ReceiptID        string          `json:"receipt_id"`
	PayloadHash      string          `json:"payload_hash"`
	MaskedRecord     json.RawMessage `json:"masked_record"`
	MaskedRecordHash string          `json:"masked_record_hash"`
	LeafIndex        int             `json:"leaf_index"`
	InclusionProof   []string        `json:"inclusion_proof,omitempty"`
}

type ProofEntry struct {
	AnchorID     string `json:"anchor_id"`
	Provider     string `json:"provider"`
	ProviderRef  string `json:"provider_ref"`
	URL          string `json:"url,omitempty"`
	SigningKeyID string `json:"signing_key_id,omitempty"`
	PublishedAt  string `json:"published_at"`
}

type RevocationStatement struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Reason     string `json:"reason,omitempty"`
	RevokedAt  string `json:"revoked_at"`
}

const (
	VerifyFailInvalidBundle        = "INVALID_BUNDLE"
	VerifyFailAnchorHashMismatch   = "ANCHOR_HASH_MISMATCH"
	VerifyFailMaskedRecordMismatch = "MASKED_RECORD_MISMATCH"
	VerifyFailInclusionInvalid     = "INCLUSION_PROOF_INVALID"
	VerifyFailNoProof              = "NO_RESOLVABLE_PROOF"
	VerifyFailRevoked              = "REVOKED"
)

// VerificationResult reports the outcome of offline bundle verification.
// Reasons are machine-readable codes; an empty list means the bundle holds.
type VerificationResult struct {
	OK      bool     `json:"ok"`
	Reasons []string `json:"reasons,omitempty"`
}
