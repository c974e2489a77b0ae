package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const bridgeViewersKey = "bridge:viewers" // String: connected dashboard viewer count

// EventCache keeps live event counters in Redis. Request status counts are
// read from the database instead: the bridge confirms requests without going
// through the HTTP handlers, so cached per-status counters would drift.
type EventCache struct {
	client *redis.Client
}

// NewEventCache creates an event cache on the given client.
func NewEventCache(client *redis.Client) *EventCache {
	return &EventCache{client: client}
}

// IncrBridgeViewers adjusts the connected-viewer counter and returns the new
// value. The counter is advisory only; the hub's registry is authoritative.
func (c *EventCache) IncrBridgeViewers(ctx context.Context, delta int64) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	n, err := c.client.IncrBy(ctx, bridgeViewersKey, delta).Result()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		// Reset drift from unclean shutdowns.
		c.client.Set(ctx, bridgeViewersKey, 0, 0)
		n = 0
	}
	return n, nil
}
