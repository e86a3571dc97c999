package secrets

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// cachedStore keeps resolved secrets in memory for ttl so that remote
// backends are not queried on every lookup
type cachedStore struct {
	next    ports.SecretStore
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// WithCache wraps store with an in-memory TTL cache. A non-positive ttl disables caching.
func WithCache(store ports.SecretStore, ttl time.Duration) ports.SecretStore {
	if ttl <= 0 {
		return store
	}
	return &cachedStore{
		next:    store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *cachedStore) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	value, err := c.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[name] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return value, nil
}
