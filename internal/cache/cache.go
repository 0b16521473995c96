// Package cache is the read-through subscription cache the engine consults
// before every dispatch. Entries carry a bounded TTL; the management layer
// invalidates synchronously on mutation so no attempt uses a stale secret
// or target URL longer than one call.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/store"
)

// Source is the store-side subscription accessor.
type Source interface {
	GetSubscription(ctx context.Context, id string) (store.Subscription, error)
}

type entry struct {
	sub     store.Subscription
	expires time.Time
}

// SubscriptionCache is a TTL map with per-key single-flight population:
// concurrent misses for the same id share one underlying fetch instead of
// issuing a fetch storm. Reads take only the RLock; the write lock is never
// held across a fetch.
type SubscriptionCache struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

func New(src Source, ttl time.Duration) *SubscriptionCache {
	return &SubscriptionCache{
		src:     src,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]entry),
	}
}

// SetClock replaces the time source for deterministic tests.
func (c *SubscriptionCache) SetClock(now func() time.Time) { c.now = now }

// Get returns the cached subscription or fetches it from the source.
// Misses propagate the source error unchanged (store.ErrNotFound included);
// negative results are not cached.
func (c *SubscriptionCache) Get(ctx context.Context, id string) (store.Subscription, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		metrics.RecordCache(true)
		return e.sub, nil
	}
	metrics.RecordCache(false)

	v, err, _ := c.group.Do(id, func() (any, error) {
		sub, err := c.src.GetSubscription(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[id] = entry{sub: sub, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return sub, nil
	})
	if err != nil {
		return store.Subscription{}, err
	}
	return v.(store.Subscription), nil
}

// Invalidate drops the entry for id. Called synchronously by the
// management layer before its mutation is acknowledged.
func (c *SubscriptionCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	// A fetch already in flight may carry the old value; forget it so the
	// next caller refetches.
	c.group.Forget(id)
}

// Len reports the number of live entries, expired included.
func (c *SubscriptionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
