// Package cachemem is a small TTL cache for active anchor policies, so the
// ingest and rehydrate paths don't hit the policy table on every request.
package cachemem

import (
	"context"
	"sync"
	"time"

	"ledgerd/internal/domain"
)

type PolicyCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     domain.AnchorPolicy
	expiresAt time.Time
	hasExpiry bool
}

func New() *PolicyCache {
	return &PolicyCache{
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *PolicyCache) Get(ctx context.Context, tenantID string) (*domain.AnchorPolicy, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[tenantID]
	if !ok {
		return nil, false, nil
	}
	if entry.hasExpiry && c.now().After(entry.expiresAt) {
		delete(c.entries, tenantID)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *PolicyCache) Put(ctx context.Context, tenantID string, value domain.AnchorPolicy, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.hasExpiry = true
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[tenantID] = entry
	return nil
}

// Invalidate drops a tenant's entry, called after a policy upsert so the new
// version takes effect without waiting out the TTL.
func (c *PolicyCache) Invalidate(ctx context.Context, tenantID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}
