package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupCache remembers which event a dedup key produced so repeat taps can be
// answered without a ledger round trip.
// Key format: checkin:dedup:<dedup_key>
type DedupCache struct {
	client *redis.Client
}

// NewDedupCache creates a DedupCache wrapping the given Redis client.
func NewDedupCache(client *redis.Client) *DedupCache {
	return &DedupCache{client: client}
}

// Lookup returns the event id recorded for dedupKey, if any.
func (d *DedupCache) Lookup(ctx context.Context, dedupKey string) (string, bool, error) {
	id, err := d.client.Get(ctx, dedupCacheKey(dedupKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup lookup: %w", err)
	}
	return id, true, nil
}

// Remember records eventID for dedupKey. SETNX keeps the first writer's id
// if two replicas race.
func (d *DedupCache) Remember(ctx context.Context, dedupKey, eventID string, ttl time.Duration) error {
	if err := d.client.SetNX(ctx, dedupCacheKey(dedupKey), eventID, ttl).Err(); err != nil {
		return fmt.Errorf("dedup remember: %w", err)
	}
	return nil
}

func dedupCacheKey(dedupKey string) string {
	return "checkin:dedup:" + dedupKey
}
