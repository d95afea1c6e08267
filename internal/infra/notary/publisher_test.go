package notary

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledgerd/internal/domain"
)

type fakeQueue struct {
	mu        sync.Mutex
	tasks     []domain.PublishTask
	published []int64
	exhausted []int64
	resched   []domain.PublishTask
}

func (q *fakeQueue) Enqueue(ctx context.Context, task domain.PublishTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) Due(ctx context.Context, now time.Time, limit int) ([]domain.PublishTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.PublishTask, len(q.tasks))
	copy(out, q.tasks)
	return out, nil
}

func (q *fakeQueue) MarkPublished(ctx context.Context, taskID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, taskID)
	return nil
}

func (q *fakeQueue) Reschedule(ctx context.Context, taskID int64, attempts int, nextAttemptAt time.Time, errorCode string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resched = append(q.resched, domain.PublishTask{
		ID:            taskID,
		Attempts:      attempts,
		NextAttemptAt: nextAttemptAt,
		LastErrorCode: errorCode,
	})
	return nil
}

func (q *fakeQueue) MarkExhausted(ctx context.Context, taskID int64, errorCode string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exhausted = append(q.exhausted, taskID)
	return nil
}

type fakeProofs struct {
	mu     sync.Mutex
	proofs []domain.Proof
}

func (p *fakeProofs) Append(ctx context.Context, proof domain.Proof) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.proofs {
		if existing.AnchorID == proof.AnchorID &&
			existing.Provider == proof.Provider &&
			existing.ProviderRef == proof.ProviderRef {
			return nil
		}
	}
	p.proofs = append(p.proofs, proof)
	return nil
}

func (p *fakeProofs) ListByAnchor(ctx context.Context, anchorID string) ([]domain.Proof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Proof
	for _, proof := range p.proofs {
		if proof.AnchorID == anchorID {
			out = append(out, proof)
		}
	}
	return out, nil
}

type fakeAttempts struct {
	mu       sync.Mutex
	attempts []domain.PublishAttempt
}

func (a *fakeAttempts) Append(ctx context.Context, attempt domain.PublishAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempt)
	return nil
}

func (a *fakeAttempts) ListByAnchor(ctx context.Context, anchorID string) ([]domain.PublishAttempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.PublishAttempt
	for _, attempt := range a.attempts {
		if attempt.AnchorID == anchorID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

type scriptedProvider struct {
	name    string
	results []Result
	mu      sync.Mutex
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Publish(ctx context.Context, req Request) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	return p.results[idx]
}

func newTestPublisher(t *testing.T, queue *fakeQueue, proofs *fakeProofs, attempts *fakeAttempts, providers ...Provider) *Publisher {
	t.Helper()
	// Avoid storing a typed nil in the interface field, which would defeat
	// the publisher's nil guard.
	var attemptsRepo domain.PublishAttemptRepository
	if attempts != nil {
		attemptsRepo = attempts
	}
	publisher, err := NewPublisher(queue, proofs, attemptsRepo, providers, nil, PublisherConfig{
		Workers:     1,
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return publisher
}

func TestPublisherSuccessAppendsProof(t *testing.T) {
	queue := &fakeQueue{tasks: []domain.PublishTask{{
		ID:         1,
		AnchorID:   "anchor-1",
		TenantID:   "tenant-1",
		Provider:   "notary",
		AnchorHash: "deadbeef",
		Status:     domain.PublishStatusPending,
	}}}
	proofs := &fakeProofs{}
	attempts := &fakeAttempts{}
	provider := &scriptedProvider{name: "notary", results: []Result{{
		OK:          true,
		ProviderRef: "entry-1",
		URL:         "https://notary.example/entries/entry-1",
	}}}

	publisher := newTestPublisher(t, queue, proofs, attempts, provider)
	if err := publisher.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(proofs.proofs) != 1 {
		t.Fatalf("expected 1 proof, got %d", len(proofs.proofs))
	}
	proof := proofs.proofs[0]
	if proof.AnchorID != "anchor-1" || proof.Provider != "notary" || proof.ProviderRef != "entry-1" {
		t.Fatalf("unexpected proof: %+v", proof)
	}
	if len(queue.published) != 1 || queue.published[0] != 1 {
		t.Fatalf("expected task 1 published, got %v", queue.published)
	}
	if len(attempts.attempts) != 1 || attempts.attempts[0].Status != domain.PublishStatusPublished {
		t.Fatalf("expected one published attempt, got %+v", attempts.attempts)
	}
}

func TestPublisherTransientFailureReschedules(t *testing.T) {
	queue := &fakeQueue{tasks: []domain.PublishTask{{
		ID:         2,
		AnchorID:   "anchor-2",
		Provider:   "notary",
		AnchorHash: "feedface",
		Attempts:   0,
	}}}
	proofs := &fakeProofs{}
	provider := &scriptedProvider{name: "notary", results: []Result{{
		ErrorCode: domain.PublishErrorProvider5xx,
	}}}

	publisher := newTestPublisher(t, queue, proofs, nil, provider)
	if err := publisher.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(proofs.proofs) != 0 {
		t.Fatal("expected no proof on failure")
	}
	if len(queue.resched) != 1 {
		t.Fatalf("expected 1 reschedule, got %d", len(queue.resched))
	}
	entry := queue.resched[0]
	if entry.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", entry.Attempts)
	}
	if entry.LastErrorCode != domain.PublishErrorProvider5xx {
		t.Fatalf("unexpected error code: %s", entry.LastErrorCode)
	}
	if !entry.NextAttemptAt.After(time.Now().Add(500 * time.Millisecond)) {
		t.Fatalf("expected backoff in the future, got %v", entry.NextAttemptAt)
	}
}

func TestPublisherExhaustsRetryBudget(t *testing.T) {
	queue := &fakeQueue{tasks: []domain.PublishTask{{
		ID:         3,
		AnchorID:   "anchor-3",
		Provider:   "notary",
		AnchorHash: "cafed00d",
		Attempts:   2,
	}}}
	provider := &scriptedProvider{name: "notary", results: []Result{{
		ErrorCode: domain.PublishErrorNetwork,
	}}}

	publisher := newTestPublisher(t, queue, &fakeProofs{}, nil, provider)
	if err := publisher.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(queue.exhausted) != 1 || queue.exhausted[0] != 3 {
		t.Fatalf("expected task 3 exhausted, got %v", queue.exhausted)
	}
	if len(queue.resched) != 0 {
		t.Fatal("expected no reschedule at budget")
	}
}

func TestPublisherBadConfigExhaustsImmediately(t *testing.T) {
	queue := &fakeQueue{tasks: []domain.PublishTask{{
		ID:         4,
		AnchorID:   "anchor-4",
		Provider:   "notary",
		AnchorHash: "0ddba11",
	}}}
	provider := &scriptedProvider{name: "notary", results: []Result{{
		ErrorCode: domain.PublishErrorBadConfig,
	}}}

	publisher := newTestPublisher(t, queue, &fakeProofs{}, nil, provider)
	if err := publisher.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(queue.exhausted) != 1 {
		t.Fatalf("expected immediate exhaustion, got %v", queue.exhausted)
	}
}

func TestPublisherUnknownProviderExhausts(t *testing.T) {
	queue := &fakeQueue{tasks: []domain.PublishTask{{
		ID:         5,
		AnchorID:   "anchor-5",
		Provider:   "missing",
		AnchorHash: "beef",
	}}}
	publisher := newTestPublisher(t, queue, &fakeProofs{}, nil)
	if err := publisher.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(queue.exhausted) != 1 {
		t.Fatalf("expected exhaustion for unknown provider, got %v", queue.exhausted)
	}
}

func TestPublisherRetryOfAcceptedPublishIsNoOp(t *testing.T) {
	queue := &fakeQueue{tasks: []domain.PublishTask{{
		ID:         6,
		AnchorID:   "anchor-6",
		Provider:   "notary",
		AnchorHash: "abad1dea",
	}}}
	proofs := &fakeProofs{}
	provider := &scriptedProvider{name: "notary", results: []Result{{
		OK:          true,
		ProviderRef: "entry-6",
	}}}

	publisher := newTestPublisher(t, queue, proofs, nil, provider)
	for i := 0; i < 3; i++ {
		if err := publisher.DrainOnce(context.Background()); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
	}
	if len(proofs.proofs) != 1 {
		t.Fatalf("expected exactly 1 proof after retries, got %d", len(proofs.proofs))
	}
}

// A healthy provider proves a fresh anchor on the first poll after the
// batcher enqueues it, so proof latency stays bounded by the poll interval
// plus one attempt.
func TestPublisherProvesFreshAnchorOnFirstPoll(t *testing.T) {
	anchoredAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	queue := &fakeQueue{tasks: []domain.PublishTask{{
		ID:         7,
		AnchorID:   "anchor-7",
		TenantID:   "tenant-1",
		Provider:   "notary",
		AnchorHash: "f00dfeed",
		Status:     domain.PublishStatusPending,
		CreatedAt:  anchoredAt,
	}}}
	proofs := &fakeProofs{}
	provider := &scriptedProvider{name: "notary", results: []Result{{
		OK:          true,
		ProviderRef: "entry-7",
	}}}

	publisher := newTestPublisher(t, queue, proofs, nil, provider)
	clock := anchoredAt.Add(publisher.cfg.PollInterval)
	publisher.now = func() time.Time { return clock }

	if err := publisher.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(proofs.proofs) != 1 {
		t.Fatalf("expected 1 proof, got %d", len(proofs.proofs))
	}
	latency := proofs.proofs[0].PublishedAt.Sub(anchoredAt)
	if latency <= 0 || latency > 30*time.Second {
		t.Fatalf("external proof landed %v after anchoring", latency)
	}
	if provider.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", provider.calls)
	}
}

func TestPublisherBackoffDoublesAndCaps(t *testing.T) {
	publisher := newTestPublisher(t, &fakeQueue{}, &fakeProofs{}, nil)
	prev := time.Duration(0)
	for attempts := 1; attempts <= 10; attempts++ {
		delay := publisher.backoff(attempts)
		if delay < publisher.cfg.BaseBackoff {
			t.Fatalf("attempt %d: delay %v below base", attempts, delay)
		}
		// Jitter adds at most 25%.
		if delay > publisher.cfg.MaxBackoff+publisher.cfg.MaxBackoff/4 {
			t.Fatalf("attempt %d: delay %v above cap", attempts, delay)
		}
		if attempts > 1 && delay < prev/2 {
			t.Fatalf("attempt %d: delay %v shrank unexpectedly", attempts, delay)
		}
		prev = delay
	}
}
