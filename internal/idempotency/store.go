// Package idempotency makes authorization exactly-once per merchant-supplied
// key. A Redis lock fences concurrent duplicates while the durable record in
// Postgres replays the stored response for later retries.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Outcome classifies what CheckOrReserve found for a key.
type Outcome int

const (
	// OutcomeProceed means the reservation was acquired and the caller owns
	// the pipeline run for this key.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a completed result exists for the same request and
	// must be returned verbatim.
	OutcomeReplay
	// OutcomeInFlight means another request holds the reservation right now.
	OutcomeInFlight
	// OutcomeMismatch means the key was already used with a different
	// request body.
	OutcomeMismatch
)

// Record is the durable outcome of one idempotent request.
type Record struct {
	MerchantID  string
	Key         string
	RequestHash string
	StatusCode  int
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// CheckResult is what CheckOrReserve decided. Stored is set for
// OutcomeReplay and OutcomeMismatch.
type CheckResult struct {
	Outcome Outcome
	Stored  *Record
}

// Locker fences concurrent requests holding the same key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RecordRepository persists completed results across restarts.
type RecordRepository interface {
	Get(ctx context.Context, merchantID, key string) (*Record, error)
	Save(ctx context.Context, record *Record) error
	PruneExpired(ctx context.Context) (int64, error)
}

// Store coordinates the lock and the durable record.
type Store struct {
	locks   Locker
	records RecordRepository
	ttl     time.Duration
	lockTTL time.Duration
}

// NewStore builds a store with the given retention and lock lifetimes.
func NewStore(locks Locker, records RecordRepository, ttl, lockTTL time.Duration) *Store {
	return &Store{locks: locks, records: records, ttl: ttl, lockTTL: lockTTL}
}

func lockKey(merchantID, key string) string {
	return fmt.Sprintf("idem:lock:%s:%s", merchantID, key)
}

const (
	acquireAttempts = 10
	acquireDelay    = 50 * time.Millisecond
)

// CheckOrReserve resolves an idempotency key before the pipeline runs.
//
// A key never seen before acquires the reservation and proceeds. A key with
// a stored result replays it when the request hash matches and reports a
// mismatch when it does not. When another request holds the reservation,
// acquisition is retried briefly; if the holder finishes in that window its
// stored result is picked up, otherwise the key reports in flight.
func (s *Store) CheckOrReserve(ctx context.Context, merchantID, key, requestHash string) (CheckResult, error) {
	rec, err := s.records.Get(ctx, merchantID, key)
	if err != nil {
		return CheckResult{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	if rec != nil {
		return s.resolve(rec, requestHash), nil
	}

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		acquired, err := s.locks.Acquire(ctx, lockKey(merchantID, key), s.lockTTL)
		if err != nil {
			return CheckResult{}, fmt.Errorf("idempotency lock: %w", err)
		}
		if acquired {
			// The winner of a racing pair may have completed between the
			// lookup and the lock. Re-check before claiming the run.
			rec, err = s.records.Get(ctx, merchantID, key)
			if err != nil {
				s.release(ctx, merchantID, key)
				return CheckResult{}, fmt.Errorf("idempotency recheck: %w", err)
			}
			if rec != nil {
				s.release(ctx, merchantID, key)
				return s.resolve(rec, requestHash), nil
			}
			return CheckResult{Outcome: OutcomeProceed}, nil
		}

		select {
		case <-ctx.Done():
			return CheckResult{}, ctx.Err()
		case <-time.After(acquireDelay):
		}
	}

	// The holder may have stored its result while we waited.
	rec, err = s.records.Get(ctx, merchantID, key)
	if err != nil {
		return CheckResult{}, fmt.Errorf("idempotency final poll: %w", err)
	}
	if rec != nil {
		return s.resolve(rec, requestHash), nil
	}
	return CheckResult{Outcome: OutcomeInFlight}, nil
}

func (s *Store) resolve(rec *Record, requestHash string) CheckResult {
	if rec.RequestHash != requestHash {
		return CheckResult{Outcome: OutcomeMismatch, Stored: rec}
	}
	return CheckResult{Outcome: OutcomeReplay, Stored: rec}
}

// Snapshot builds the durable record for a definitive outcome. Callers that
// must persist the record atomically with their own rows save it through a
// transaction-bound RecordRepository, then call ReleaseLock after commit.
func (s *Store) Snapshot(merchantID, key, requestHash string, statusCode int, body []byte) *Record {
	now := time.Now().UTC()
	return &Record{
		MerchantID:  merchantID,
		Key:         key,
		RequestHash: requestHash,
		StatusCode:  statusCode,
		Body:        body,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
}

// SaveRecord persists a prepared record without touching the reservation.
// With a transaction-aware repository the record commits or rolls back with
// the caller's other writes.
func (s *Store) SaveRecord(ctx context.Context, rec *Record) error {
	if err := s.records.Save(ctx, rec); err != nil {
		return fmt.Errorf("idempotency save: %w", err)
	}
	return nil
}

// StoreResult persists the final response for the key and releases the
// reservation. Every definitive outcome is stored, declines included.
func (s *Store) StoreResult(ctx context.Context, merchantID, key, requestHash string, statusCode int, body []byte) error {
	rec := s.Snapshot(merchantID, key, requestHash, statusCode, body)
	if err := s.records.Save(ctx, rec); err != nil {
		return fmt.Errorf("idempotency save: %w", err)
	}
	s.release(ctx, merchantID, key)
	return nil
}

// ReleaseLock frees the reservation without storing a result, so the client
// can retry after a pipeline failure that produced no definitive outcome.
func (s *Store) ReleaseLock(ctx context.Context, merchantID, key string) error {
	return s.locks.Release(ctx, lockKey(merchantID, key))
}

func (s *Store) release(ctx context.Context, merchantID, key string) {
	// Lock expiry covers a failed release.
	_ = s.locks.Release(ctx, lockKey(merchantID, key))
}

// PruneExpired removes records past their retention.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	return s.records.PruneExpired(ctx)
}

// RequestHash fingerprints a request for idempotency comparison.
func RequestHash(req any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%+v", req)
	return hex.EncodeToString(h.Sum(nil))
}
