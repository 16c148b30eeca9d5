package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Deduplicator tracks processed event ids for the consumer. Retention must
// outlive the broker's replay window or replayed events reprocess.
type Deduplicator struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewDeduplicator(client *goredis.Client, ttl time.Duration) *Deduplicator {
	return &Deduplicator{client: client, ttl: ttl}
}

func dedupKey(eventID string) string {
	return "events:seen:" + eventID
}

func (d *Deduplicator) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (d *Deduplicator) MarkProcessed(ctx context.Context, eventID string) error {
	if err := d.client.Set(ctx, dedupKey(eventID), "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", eventID, err)
	}
	return nil
}
