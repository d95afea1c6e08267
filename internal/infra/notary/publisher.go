package notary

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/metrics"

	"golang.org/x/sync/errgroup"
)

// PublisherConfig bounds the retry behavior of the publish loop.
type PublisherConfig struct {
	Workers        int
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	PollInterval   time.Duration
	BatchLimit     int
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 64
	}
	return c
}

// Publisher drains the durable publish queue. A task leaves the queue only by
// producing a proof or exhausting its retry budget; the write path never
// waits on it.
type Publisher struct {
	queue     domain.PublishQueueRepository
	proofs    domain.ProofRepository
	attempts  domain.PublishAttemptRepository
	providers map[string]Provider
	metrics   *metrics.Metrics
	cfg       PublisherConfig
	now       func() time.Time
}

func NewPublisher(
	queue domain.PublishQueueRepository,
	proofs domain.ProofRepository,
	attempts domain.PublishAttemptRepository,
	providers []Provider,
	m *metrics.Metrics,
	cfg PublisherConfig,
) (*Publisher, error) {
	if queue == nil || proofs == nil {
		return nil, errors.New("publish queue and proof repository are required")
	}
	index := make(map[string]Provider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			return nil, errors.New("provider is nil")
		}
		name := provider.Name()
		if name == "" {
			return nil, errors.New("provider name is required")
		}
		if _, exists := index[name]; exists {
			return nil, errors.New("duplicate provider name: " + name)
		}
		index[name] = provider
	}
	return &Publisher{
		queue:     queue,
		proofs:    proofs,
		attempts:  attempts,
		providers: index,
		metrics:   m,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}, nil
}

// Run polls until the context ends. Errors from individual tasks are logged
// and absorbed; only a failing queue read surfaces between ticks.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.DrainOnce(ctx); err != nil {
				log.Printf("notary publisher: drain: %v", err)
			}
		}
	}
}

// DrainOnce claims every due task and processes them on a bounded pool.
func (p *Publisher) DrainOnce(ctx context.Context) error {
	tasks, err := p.queue.Due(ctx, p.now().UTC(), p.cfg.BatchLimit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			p.process(ctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (p *Publisher) process(ctx context.Context, task domain.PublishTask) {
	provider, ok := p.providers[task.Provider]
	if !ok {
		log.Printf("notary publisher: no provider %q for anchor %s", task.Provider, task.AnchorID)
		p.exhaust(ctx, task, domain.PublishErrorBadConfig)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	result := provider.Publish(attemptCtx, Request{
		Digest:      task.AnchorHash,
		ReferenceID: ReferenceID(task.AnchorID, task.Provider),
	})
	cancel()

	if result.OK {
		p.recordSuccess(ctx, task, result)
		return
	}
	p.recordFailure(ctx, task, result)
}

func (p *Publisher) recordSuccess(ctx context.Context, task domain.PublishTask, result Result) {
	proof := domain.Proof{
		AnchorID:     task.AnchorID,
		Provider:     task.Provider,
		ProviderRef:  result.ProviderRef,
		URL:          result.URL,
		SigningKeyID: result.SigningKeyID,
		PublishedAt:  p.now().UTC(),
	}
	if err := p.proofs.Append(ctx, proof); err != nil {
		log.Printf("notary publisher: append proof for anchor %s: %v", task.AnchorID, err)
		p.reschedule(ctx, task, domain.PublishErrorPersistence)
		return
	}
	p.appendAttempt(ctx, task, domain.PublishStatusPublished, "", result.ProviderReceiptJSON)
	if err := p.queue.MarkPublished(ctx, task.ID); err != nil {
		log.Printf("notary publisher: mark published anchor %s: %v", task.AnchorID, err)
		return
	}
	if p.metrics != nil {
		p.metrics.PublishAttemptsTotal.WithLabelValues(task.Provider, "published").Inc()
	}
	log.Printf("notary publisher: anchor %s published via %s ref=%s", task.AnchorID, task.Provider, result.ProviderRef)
}

func (p *Publisher) recordFailure(ctx context.Context, task domain.PublishTask, result Result) {
	p.appendAttempt(ctx, task, "failed", result.ErrorCode, result.ProviderReceiptJSON)
	if p.metrics != nil {
		p.metrics.PublishAttemptsTotal.WithLabelValues(task.Provider, "failed").Inc()
	}
	if result.ErrorCode == domain.PublishErrorBadConfig {
		p.exhaust(ctx, task, result.ErrorCode)
		return
	}
	p.reschedule(ctx, task, result.ErrorCode)
}

func (p *Publisher) reschedule(ctx context.Context, task domain.PublishTask, errorCode string) {
	attempts := task.Attempts + 1
	if attempts >= p.cfg.MaxAttempts {
		p.exhaust(ctx, task, errorCode)
		return
	}
	next := p.now().UTC().Add(p.backoff(attempts))
	if err := p.queue.Reschedule(ctx, task.ID, attempts, next, errorCode); err != nil {
		log.Printf("notary publisher: reschedule anchor %s: %v", task.AnchorID, err)
		return
	}
	if p.metrics != nil {
		p.metrics.PublishRetriesTotal.WithLabelValues(task.Provider, errorCode).Inc()
	}
}

func (p *Publisher) exhaust(ctx context.Context, task domain.PublishTask, errorCode string) {
	if err := p.queue.MarkExhausted(ctx, task.ID, errorCode); err != nil {
		log.Printf("notary publisher: mark exhausted anchor %s: %v", task.AnchorID, err)
		return
	}
	if p.metrics != nil {
		p.metrics.DegradedAnchors.Inc()
	}
	log.Printf("notary publisher: anchor %s exhausted publish budget via %s (%s)", task.AnchorID, task.Provider, errorCode)
}

func (p *Publisher) appendAttempt(ctx context.Context, task domain.PublishTask, status, errorCode string, receiptJSON []byte) {
	if p.attempts == nil {
		return
	}
	attempt := domain.PublishAttempt{
		AnchorID:            task.AnchorID,
		TenantID:            task.TenantID,
		Provider:            task.Provider,
		Status:              status,
		ErrorCode:           errorCode,
		ProviderReceiptJSON: receiptJSON,
	}
	if err := p.attempts.Append(ctx, attempt); err != nil {
		log.Printf("notary publisher: append attempt for anchor %s: %v", task.AnchorID, err)
	}
}

// backoff doubles per attempt up to the cap, with up to 25% jitter so
// stalled tasks don't thunder back in lockstep.
func (p *Publisher) backoff(attempts int) time.Duration {
	delay := p.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.cfg.MaxBackoff {
			delay = p.cfg.MaxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
