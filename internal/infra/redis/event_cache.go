// File: internal/infra/redis/event_cache.go
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// EventCache remembers processed webhook event ids so redelivered events
// short-circuit before touching the database. Ids are marked only after the
// ledger writes commit; an errored delivery stays unmarked so the provider's
// retry is treated as first contact. The unique indexes on the ledgers absorb
// duplicates when the cache is cold or down.
type EventCache struct {
	cli *redis.Client
	ttl time.Duration
}

func NewEventCache(c *Client, ttl time.Duration) *EventCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EventCache{cli: c.cli, ttl: ttl}
}

// Seen reports whether the event id has already been processed.
func (e *EventCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := e.cli.Exists(ctx, "webhook:event:"+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records the event id after its ledger writes have committed.
func (e *EventCache) MarkProcessed(ctx context.Context, eventID string) error {
	return e.cli.Set(ctx, "webhook:event:"+eventID, 1, e.ttl).Err()
}
