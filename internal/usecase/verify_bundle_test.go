package usecase

import (
	"context"
	"errors"
	"testing"

	"ledgerd/internal/domain"
)

func validBundle(t *testing.T) domain.EvidenceBundle {
	t.Helper()
	fixture := newRehydrateFixture(t)
	fixture.ingestAndAnchor(t, "t1", map[string]string{
		"op-1": `{"amount":125,"kind":"transfer"}`,
		"op-2": `{"amount":60,"kind":"refund"}`,
		"op-3": `{"amount":12,"kind":"transfer"}`,
	})
	bundle, err := fixture.svc.Rehydrate(context.Background(), "t1", "op-2", "")
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	return bundle
}

func assertFailsWith(t *testing.T, bundle domain.EvidenceBundle, code string) {
	t.Helper()
	result := VerifyBundle(context.Background(), bundle, nil)
	if result.OK {
		t.Fatalf("expected verification failure %s, bundle verified", code)
	}
	for _, reason := range result.Reasons {
		if reason == code {
			return
		}
	}
	t.Fatalf("expected reason %s, got %v", code, result.Reasons)
}

func TestVerifyBundleAcceptsValid(t *testing.T) {
	bundle := validBundle(t)
	result := VerifyBundle(context.Background(), bundle, nil)
	if !result.OK {
		t.Fatalf("valid bundle rejected: %v", result.Reasons)
	}
}

func TestVerifyBundleRejectsEmpty(t *testing.T) {
	assertFailsWith(t, domain.EvidenceBundle{}, domain.VerifyFailInvalidBundle)

	bundle := validBundle(t)
	bundle.CanonicalInputs = nil
	assertFailsWith(t, bundle, domain.VerifyFailInvalidBundle)

	bundle = validBundle(t)
	bundle.AnchorHash = ""
	assertFailsWith(t, bundle, domain.VerifyFailInvalidBundle)
}

func TestVerifyBundleDetectsTamperedPayloadHash(t *testing.T) {
	bundle := validBundle(t)
	bundle.CanonicalInputs[0].PayloadHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assertFailsWith(t, bundle, domain.VerifyFailAnchorHashMismatch)
}

func TestVerifyBundleDetectsTamperedAnchorHash(t *testing.T) {
	bundle := validBundle(t)
	bundle.AnchorHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assertFailsWith(t, bundle, domain.VerifyFailAnchorHashMismatch)
}

func TestVerifyBundleDetectsTamperedMaskedRecord(t *testing.T) {
	bundle := validBundle(t)
	bundle.CanonicalInputs[1].MaskedRecord = []byte(`{"amount":999,"kind":"refund"}`)
	assertFailsWith(t, bundle, domain.VerifyFailMaskedRecordMismatch)
}

func TestVerifyBundleDetectsBadInclusionProof(t *testing.T) {
	bundle := validBundle(t)
	proof := bundle.CanonicalInputs[0].InclusionProof
	if len(proof) == 0 {
		t.Fatal("fixture bundle has no inclusion proof")
	}
	proof[0] = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assertFailsWith(t, bundle, domain.VerifyFailInclusionInvalid)
}

func TestVerifyBundleRequiresResolvableProof(t *testing.T) {
	bundle := validBundle(t)
	bundle.Proofs = nil
	assertFailsWith(t, bundle, domain.VerifyFailNoProof)

	bundle = validBundle(t)
	for i := range bundle.Proofs {
		bundle.Proofs[i].ProviderRef = ""
	}
	assertFailsWith(t, bundle, domain.VerifyFailNoProof)
}

func TestVerifyBundleEmbeddedRevocation(t *testing.T) {
	bundle := validBundle(t)
	bundle.Revoked = true
	bundle.Revocations = []domain.RevocationStatement{{
		TargetType: domain.RevocationTargetAnchor,
		TargetID:   bundle.AnchorID,
		RevokedAt:  fixedClock().Format("2006-01-02T15:04:05Z"),
	}}
	assertFailsWith(t, bundle, domain.VerifyFailRevoked)
}

func TestVerifyBundleLiveRevocationCheck(t *testing.T) {
	bundle := validBundle(t)
	registry := &memRevocations{}
	if err := registry.Revoke(context.Background(), domain.RevocationEntry{
		TenantID:   bundle.TenantID,
		TargetType: domain.RevocationTargetAnchor,
		TargetID:   bundle.AnchorID,
		RevokedAt:  fixedClock(),
	}); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	result := VerifyBundle(context.Background(), bundle, registry)
	if result.OK {
		t.Fatal("live-revoked bundle must not verify")
	}
	if result.Reasons[0] != domain.VerifyFailRevoked {
		t.Errorf("expected REVOKED, got %v", result.Reasons)
	}
}

type failingChecker struct{}

func (failingChecker) IsRevoked(ctx context.Context, tenantID, targetID string) (bool, error) {
	return false, errors.New("registry unreachable")
}

func TestVerifyBundleUnreachableRegistryIsSkipped(t *testing.T) {
	bundle := validBundle(t)
	result := VerifyBundle(context.Background(), bundle, failingChecker{})
	if !result.OK {
		t.Errorf("unreachable registry should not fail verification: %v", result.Reasons)
	}
}
