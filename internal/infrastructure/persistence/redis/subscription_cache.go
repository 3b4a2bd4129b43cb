package redis

import (
	"context"
	"errors"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// SubscriptionCache implements subscription.Cache using the generic Redis Cache.
// It stores short-lived snapshots of subscription records so access checks
// on hot read paths do not hit PostgreSQL.
type SubscriptionCache struct {
	cache      *Cache
	defaultTTL time.Duration
}

// NewSubscriptionCache creates a new SubscriptionCache.
func NewSubscriptionCache(cache *Cache) *SubscriptionCache {
	return &SubscriptionCache{
		cache:      cache,
		defaultTTL: TTLSubscriptionCache,
	}
}

// SubscriptionKey returns the cache key for a user's subscription snapshot.
func SubscriptionKey(userID string) string {
	return PrefixSubscription + userID
}

// Get gets a subscription snapshot from cache.
// A cache miss is reported as a not-found error so callers fall through
// to the repository.
func (s *SubscriptionCache) Get(ctx context.Context, userID string) (*subscription.Record, error) {
	var record subscription.Record
	err := s.cache.Get(ctx, SubscriptionKey(userID), &record)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.WrapError("cache", "Get", shared.ErrNotFound,
				"subscription snapshot not cached", err)
		}
		return nil, err
	}
	return &record, nil
}

// Set stores a subscription snapshot in cache.
// A zero TTL uses the package default.
func (s *SubscriptionCache) Set(ctx context.Context, record *subscription.Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	return s.cache.Set(ctx, SubscriptionKey(record.UserID), record, ttl)
}

// Invalidate removes a subscription snapshot from cache.
// Called on every billing event so a stale snapshot never outlives
// a known state change.
func (s *SubscriptionCache) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, SubscriptionKey(userID))
}

// WebhookDeduper remembers processed billing webhook event IDs.
// Providers redeliver events; applying one twice must be a no-op.
type WebhookDeduper struct {
	cache *Cache
	ttl   time.Duration
}

// NewWebhookDeduper creates a new WebhookDeduper.
func NewWebhookDeduper(cache *Cache) *WebhookDeduper {
	return &WebhookDeduper{
		cache: cache,
		ttl:   TTLWebhookEvent,
	}
}

// MarkProcessed records an event ID. Returns false if the event was
// already processed.
func (d *WebhookDeduper) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	return d.cache.SetNX(ctx, PrefixWebhookEvent+eventID, time.Now().UTC(), d.ttl)
}
