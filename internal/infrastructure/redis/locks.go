package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// LockStore implements idempotency.Locker. SET NX makes acquisition atomic
// across gateway instances; the TTL bounds how long a crashed holder can
// block retries.
type LockStore struct {
	client *goredis.Client
}

func NewLockStore(client *goredis.Client) *LockStore {
	return &LockStore{client: client}
}

func (s *LockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *LockStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
