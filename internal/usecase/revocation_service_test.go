package usecase

import (
	"context"
	"testing"

	"ledgerd/internal/domain"
)

func newTestRevocationService() (*RevocationService, *memRevocations, *memEpochs, *memAudit) {
	revocations := &memRevocations{}
	epochs := newMemEpochs()
	audit := newMemAudit()
	svc := NewRevocationService(revocations, epochs, audit)
	svc.Now = fixedClock
	return svc, revocations, epochs, audit
}

func TestRevokeBumpsEpoch(t *testing.T) {
	svc, _, epochs, audit := newTestRevocationService()

	epoch, err := svc.Revoke(context.Background(), domain.RevocationEntry{
		TenantID:   "t1",
		TargetType: domain.RevocationTargetAnchor,
		TargetID:   "anchor-1",
		Reason:     "operator error",
	}, "admin-hash")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if epoch != 1 {
		t.Errorf("expected epoch 1, got %d", epoch)
	}

	epoch, err = svc.Revoke(context.Background(), domain.RevocationEntry{
		TenantID:   "t1",
		TargetType: domain.RevocationTargetReceipt,
		TargetID:   "op-7",
	}, "admin-hash")
	if err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if epoch != 2 {
		t.Errorf("expected epoch 2, got %d", epoch)
	}

	stored, _ := epochs.GetEpoch(context.Background(), "t1")
	if stored != 2 {
		t.Errorf("stored epoch %d", stored)
	}
	other, _ := epochs.GetEpoch(context.Background(), "t2")
	if other != 0 {
		t.Errorf("unrelated tenant epoch moved to %d", other)
	}

	types := audit.eventTypes("t1")
	if len(types) != 2 {
		t.Fatalf("expected 2 audit events, got %v", types)
	}
	for _, eventType := range types {
		if eventType != string(domain.AuditEventArtifactRevoked) {
			t.Errorf("unexpected audit event %s", eventType)
		}
	}
}

func TestRevokeValidation(t *testing.T) {
	svc, _, _, _ := newTestRevocationService()

	cases := []domain.RevocationEntry{
		{TenantID: "", TargetType: domain.RevocationTargetAnchor, TargetID: "a"},
		{TenantID: "t1", TargetType: domain.RevocationTargetAnchor, TargetID: ""},
		{TenantID: "t1", TargetType: "policy", TargetID: "a"},
	}
	for i, entry := range cases {
		if _, err := svc.Revoke(context.Background(), entry, ""); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestRevokeIsIdempotentOnTarget(t *testing.T) {
	svc, revocations, _, _ := newTestRevocationService()

	entry := domain.RevocationEntry{
		TenantID:   "t1",
		TargetType: domain.RevocationTargetAnchor,
		TargetID:   "anchor-1",
		Reason:     "first",
	}
	if _, err := svc.Revoke(context.Background(), entry, ""); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	entry.Reason = "second"
	if _, err := svc.Revoke(context.Background(), entry, ""); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}

	entries, _ := revocations.ListByTargets(context.Background(), "t1", []string{"anchor-1"})
	if len(entries) != 1 || entries[0].Reason != "first" {
		t.Errorf("first revocation entry must win, got %+v", entries)
	}

	revoked, err := svc.IsRevoked(context.Background(), "t1", "anchor-1")
	if err != nil || !revoked {
		t.Errorf("IsRevoked = %v, %v", revoked, err)
	}
}
