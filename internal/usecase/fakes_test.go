package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/canon"
)

type memReceipts struct {
	mu      sync.Mutex
	order   []string
	rows    map[string]domain.Receipt
	nextSeq int
	seq     map[string]int
}

func newMemReceipts() *memReceipts {
	return &memReceipts{
		rows: make(map[string]domain.Receipt),
		seq:  make(map[string]int),
	}
}

func receiptKey(tenantID, receiptID string) string {
	return tenantID + "/" + receiptID
}

func (m *memReceipts) Put(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := receiptKey(receipt.TenantID, receipt.ReceiptID)
	if _, exists := m.rows[key]; exists {
		return domain.Receipt{}, domain.ErrDuplicateReceipt
	}
	m.rows[key] = receipt
	m.order = append(m.order, key)
	m.nextSeq++
	m.seq[key] = m.nextSeq
	return receipt, nil
}

func (m *memReceipts) Get(ctx context.Context, tenantID, receiptID string) (domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt, ok := m.rows[receiptKey(tenantID, receiptID)]
	if !ok {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return receipt, nil
}

func (m *memReceipts) ListUnanchored(ctx context.Context, tenantID string, limit int) ([]domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Receipt
	for _, key := range m.order {
		receipt := m.rows[key]
		if receipt.TenantID != tenantID || receipt.Anchored() {
			continue
		}
		out = append(out, receipt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memReceipts) CountUnanchored(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for _, receipt := range m.rows {
		if !receipt.Anchored() {
			out[receipt.TenantID]++
		}
	}
	return out, nil
}

// claimAll marks every receipt anchored, or none of them. Mirrors the
// all-or-nothing transition inside the real anchor commit.
func (m *memReceipts) claimAll(tenantID string, receiptIDs []string, anchorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, receiptID := range receiptIDs {
		receipt, ok := m.rows[receiptKey(tenantID, receiptID)]
		if !ok || receipt.Anchored() {
			return fmt.Errorf("receipt %s is missing or already anchored", receiptID)
		}
	}
	for _, receiptID := range receiptIDs {
		key := receiptKey(tenantID, receiptID)
		receipt := m.rows[key]
		receipt.AnchorID = anchorID
		m.rows[key] = receipt
	}
	return nil
}

type memAnchors struct {
	mu       sync.Mutex
	receipts *memReceipts
	rows     map[string]domain.Anchor
}

func newMemAnchors(receipts *memReceipts) *memAnchors {
	return &memAnchors{receipts: receipts, rows: make(map[string]domain.Anchor)}
}

func (m *memAnchors) Commit(ctx context.Context, anchor domain.Anchor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[anchor.AnchorID]; exists {
		return nil
	}
	if err := m.receipts.claimAll(anchor.TenantID, anchor.MemberIDs, anchor.AnchorID); err != nil {
		return err
	}
	m.rows[anchor.AnchorID] = anchor
	return nil
}

func (m *memAnchors) Get(ctx context.Context, anchorID string) (domain.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	anchor, ok := m.rows[anchorID]
	if !ok {
		return domain.Anchor{}, domain.ErrNotFound
	}
	return anchor, nil
}

func (m *memAnchors) GetByReceipt(ctx context.Context, tenantID, receiptID string) (domain.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, anchor := range m.rows {
		if anchor.TenantID != tenantID {
			continue
		}
		for _, member := range anchor.MemberIDs {
			if member == receiptID {
				return anchor, nil
			}
		}
	}
	return domain.Anchor{}, domain.ErrNotFound
}

type memProofs struct {
	mu   sync.Mutex
	rows []domain.Proof
}

func (m *memProofs) Append(ctx context.Context, proof domain.Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.AnchorID == proof.AnchorID &&
			existing.Provider == proof.Provider &&
			existing.ProviderRef == proof.ProviderRef {
			return nil
		}
	}
	m.rows = append(m.rows, proof)
	return nil
}

func (m *memProofs) ListByAnchor(ctx context.Context, anchorID string) ([]domain.Proof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Proof
	for _, proof := range m.rows {
		if proof.AnchorID == anchorID {
			out = append(out, proof)
		}
	}
	return out, nil
}

type memQueue struct {
	mu    sync.Mutex
	tasks []domain.PublishTask
}

func (m *memQueue) Enqueue(ctx context.Context, task domain.PublishTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tasks {
		if existing.AnchorID == task.AnchorID && existing.Provider == task.Provider {
			return nil
		}
	}
	task.ID = int64(len(m.tasks) + 1)
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memQueue) Due(ctx context.Context, now time.Time, limit int) ([]domain.PublishTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PublishTask
	for _, task := range m.tasks {
		if task.Status == domain.PublishStatusPending {
			out = append(out, task)
		}
	}
	return out, nil
}

func (m *memQueue) MarkPublished(ctx context.Context, taskID int64) error {
	return m.setStatus(taskID, domain.PublishStatusPublished)
}

func (m *memQueue) Reschedule(ctx context.Context, taskID int64, attempts int, nextAttemptAt time.Time, errorCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == taskID {
			m.tasks[i].Attempts = attempts
			m.tasks[i].NextAttemptAt = nextAttemptAt
			m.tasks[i].LastErrorCode = errorCode
			return nil
		}
	}
	return errors.New("task not found")
}

func (m *memQueue) MarkExhausted(ctx context.Context, taskID int64, errorCode string) error {
	return m.setStatus(taskID, domain.PublishStatusExhausted)
}

func (m *memQueue) setStatus(taskID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == taskID {
			m.tasks[i].Status = status
			return nil
		}
	}
	return errors.New("task not found")
}

type memPolicies struct {
	mu   sync.Mutex
	rows []domain.AnchorPolicy
}

func (m *memPolicies) Upsert(ctx context.Context, policy domain.AnchorPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.TenantID == policy.TenantID && existing.Version == policy.Version {
			return nil
		}
	}
	m.rows = append(m.rows, policy)
	return nil
}

func (m *memPolicies) Active(ctx context.Context, tenantID string) (domain.AnchorPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].TenantID == tenantID {
			return m.rows[i], nil
		}
	}
	return domain.AnchorPolicy{}, domain.ErrPolicyNotFound
}

func (m *memPolicies) GetVersion(ctx context.Context, tenantID, version string) (domain.AnchorPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, policy := range m.rows {
		if policy.TenantID == tenantID && policy.Version == version {
			return policy, nil
		}
	}
	return domain.AnchorPolicy{}, domain.ErrPolicyNotFound
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.AnchorPolicy
	puts    int
	hits    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.AnchorPolicy)}
}

func (m *memCache) Get(ctx context.Context, tenantID string) (*domain.AnchorPolicy, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy, ok := m.entries[tenantID]
	if !ok {
		return nil, false, nil
	}
	m.hits++
	out := policy
	return &out, true, nil
}

func (m *memCache) Put(ctx context.Context, tenantID string, value domain.AnchorPolicy, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tenantID] = value
	m.puts++
	return nil
}

func (m *memCache) Invalidate(ctx context.Context, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, tenantID)
}

type memRevocations struct {
	mu   sync.Mutex
	rows []domain.RevocationEntry
}

func (m *memRevocations) Revoke(ctx context.Context, entry domain.RevocationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.TenantID == entry.TenantID && existing.TargetID == entry.TargetID {
			return nil
		}
	}
	m.rows = append(m.rows, entry)
	return nil
}

func (m *memRevocations) ListByTargets(ctx context.Context, tenantID string, targetIDs []string) ([]domain.RevocationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := make(map[string]bool, len(targetIDs))
	for _, target := range targetIDs {
		targets[target] = true
	}
	var out []domain.RevocationEntry
	for _, entry := range m.rows {
		if entry.TenantID == tenantID && targets[entry.TargetID] {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memRevocations) IsRevoked(ctx context.Context, tenantID, targetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.rows {
		if entry.TenantID == tenantID && entry.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}

type memEpochs struct {
	mu     sync.Mutex
	epochs map[string]int64
}

func newMemEpochs() *memEpochs {
	return &memEpochs{epochs: make(map[string]int64)}
}

func (m *memEpochs) BumpEpoch(ctx context.Context, tenantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs[tenantID]++
	return m.epochs[tenantID], nil
}

func (m *memEpochs) GetEpoch(ctx context.Context, tenantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epochs[tenantID], nil
}

type memAudit struct {
	mu     sync.Mutex
	events map[string][]domain.AuditEvent
}

func newMemAudit() *memAudit {
	return &memAudit{events: make(map[string][]domain.AuditEvent)}
}

func (m *memAudit) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.TenantID == "" {
		event.TenantID = domain.AuditSystemTenantID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Unix(1700000000, 0).UTC()
	}
	chain := m.events[event.TenantID]
	event.Seq = int64(len(chain)) + 1
	if len(chain) == 0 {
		event.PrevEventHash = zeroAuditHash()
	} else {
		event.PrevEventHash = chain[len(chain)-1].EventHash
	}
	payloadJSON, err := canon.CanonicalizeAny(event.Payload)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.Payload = payloadJSON
	sum := sha256.Sum256(payloadJSON)
	event.PayloadHash = hex.EncodeToString(sum[:])
	hash, err := computeChainHash(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.EventHash = hash
	m.events[event.TenantID] = append(chain, event)
	return event, nil
}

func (m *memAudit) ListByTenant(ctx context.Context, tenantID string) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tenantID == "" {
		tenantID = domain.AuditSystemTenantID
	}
	out := make([]domain.AuditEvent, len(m.events[tenantID]))
	copy(out, m.events[tenantID])
	return out, nil
}

func (m *memAudit) eventTypes(tenantID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, event := range m.events[tenantID] {
		out = append(out, string(event.EventType))
	}
	sort.Strings(out)
	return out
}

type allowAllAdmission struct{}

func (allowAllAdmission) Admit(ctx context.Context, input map[string]any) (domain.AdmissionDecision, error) {
	return domain.AdmissionDecision{Allow: true}, nil
}

type denyAllAdmission struct{ reasons []string }

func (d denyAllAdmission) Admit(ctx context.Context, input map[string]any) (domain.AdmissionDecision, error) {
	return domain.AdmissionDecision{Allow: false, Reasons: d.reasons}, nil
}
