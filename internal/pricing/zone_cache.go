package pricing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pool-dispatch/internal/models"
)

// ZoneCache is a write-through Redis cache in front of the surge-zone
// persistence store (spec §9 design note: "any in-process cache must be
// write-through"). It never becomes the source of truth — a cache miss
// or Redis outage simply means the caller falls back to persistence.
type ZoneCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewZoneCache builds a cache against an existing Redis client.
func NewZoneCache(client *redis.Client, ttl time.Duration) *ZoneCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ZoneCache{client: client, prefix: "surgezone:", ttl: ttl}
}

func (c *ZoneCache) key(zoneID string) string { return c.prefix + zoneID }

// Get returns the cached zone and true if present and unexpired.
func (c *ZoneCache) Get(ctx context.Context, zoneID string) (models.SurgeZone, bool) {
	if c == nil || c.client == nil {
		return models.SurgeZone{}, false
	}
	raw, err := c.client.Get(ctx, c.key(zoneID)).Bytes()
	if err != nil {
		return models.SurgeZone{}, false
	}
	var z models.SurgeZone
	if err := json.Unmarshal(raw, &z); err != nil {
		return models.SurgeZone{}, false
	}
	return z, true
}

// Put writes through to the cache after the caller has already committed
// to persistence. A cache write failure is not surfaced — pricing
// correctness never depends on the cache.
func (c *ZoneCache) Put(ctx context.Context, z models.SurgeZone) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(z)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(z.ID), raw, c.ttl).Err()
}

// Invalidate drops a zone from the cache, used when a zone is deleted or
// its shape changes outside of Put.
func (c *ZoneCache) Invalidate(ctx context.Context, zoneID string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, c.key(zoneID)).Err()
}
