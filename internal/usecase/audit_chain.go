package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/canon"
)

// VerifyTenantAuditChain replays a tenant's audit events and checks sequence
// continuity, payload hashes, and the prev-hash links end to end.
func VerifyTenantAuditChain(ctx context.Context, repo AuditEventRepository, tenantID string) error {
	if repo == nil {
		return errors.New("audit repository required")
	}
	if tenantID == "" {
		tenantID = domain.AuditSystemTenantID
	}
	events, err := repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	expectedSeq := int64(1)
	prevHash := zeroAuditHash()
	for _, event := range events {
		if event.TenantID != tenantID {
			return fmt.Errorf("audit chain tenant mismatch at seq %d", event.Seq)
		}
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, event.Seq)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", event.Seq)
		}
		payloadJSON, err := payloadBytes(event.Payload)
		if err != nil {
			return fmt.Errorf("audit chain payload decode failed at seq %d: %w", event.Seq, err)
		}
		if sha256Hex(payloadJSON) != event.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d", event.Seq)
		}
		if event.CreatedAt.IsZero() {
			return fmt.Errorf("audit chain missing created_at at seq %d", event.Seq)
		}
		expectedHash, err := computeChainHash(event)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", event.Seq, err)
		}
		if expectedHash != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", event.Seq)
		}
		prevHash = event.EventHash
		expectedSeq++
	}
	return nil
}

func payloadBytes(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("payload must be canonical JSON bytes")
	}
}

func computeChainHash(event domain.AuditEvent) (string, error) {
	if event.TenantID == "" || event.EventType == "" {
		return "", errors.New("audit event missing tenant_id or event_type")
	}
	if event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("audit event missing payload_hash or prev_event_hash")
	}
	canonical, err := canon.CanonicalizeAny(map[string]any{
		"v":               domain.AuditChainVersion,
		"tenant_id":       event.TenantID,
		"seq":             event.Seq,
		"event_type":      string(event.EventType),
		"payload_hash":    event.PayloadHash,
		"prev_event_hash": event.PrevEventHash,
		"created_at":      event.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

func zeroAuditHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}
