package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CounterStore implements application.Counter for fraud velocity rules and
// request rate limiting. INCR and the window expiry run in one pipeline; the
// NX expiry starts the window at the first increment and leaves it alone
// afterwards, so the count is monotone within a window.
type CounterStore struct {
	client *goredis.Client
}

func NewCounterStore(client *goredis.Client) *CounterStore {
	return &CounterStore{client: client}
}

func (s *CounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}
