package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meridianpay/gateway/internal/resilience"
)

// CircuitStore shares breaker records between gateway instances. WATCH turns
// the read-modify-write into a compare-and-swap: the transaction aborts when
// another instance touched the key first, and the breaker re-reads.
type CircuitStore struct {
	client *goredis.Client
}

func NewCircuitStore(client *goredis.Client) *CircuitStore {
	return &CircuitStore{client: client}
}

func circuitKey(name string) string {
	return "circuit:" + name
}

func (s *CircuitStore) Get(ctx context.Context, name string) (resilience.CircuitRecord, error) {
	raw, err := s.client.Get(ctx, circuitKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return resilience.CircuitRecord{State: resilience.CircuitClosed}, nil
		}
		return resilience.CircuitRecord{}, fmt.Errorf("redis get circuit %s: %w", name, err)
	}

	var rec resilience.CircuitRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return resilience.CircuitRecord{}, fmt.Errorf("decode circuit %s: %w", name, err)
	}
	return rec, nil
}

func (s *CircuitStore) CompareAndSwap(ctx context.Context, name string, next resilience.CircuitRecord) (bool, error) {
	key := circuitKey(name)

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		var version int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
			version = 0
		case err != nil:
			return err
		default:
			var current resilience.CircuitRecord
			if err := json.Unmarshal(raw, &current); err != nil {
				return err
			}
			version = current.Version
		}

		if version != next.Version-1 {
			return goredis.TxFailedErr
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis cas circuit %s: %w", name, err)
	}
	return true, nil
}

var _ resilience.CircuitStore = (*CircuitStore)(nil)
