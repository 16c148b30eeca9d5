package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/idempotency"
)

func (s *PostgresTestSuite) idempotencyRecord(key string, body string) *idempotency.Record {
	now := time.Now().UTC()
	return &idempotency.Record{
		MerchantID:  "mch_1",
		Key:         key,
		RequestHash: "hash-abc",
		StatusCode:  201,
		Body:        []byte(body),
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
}

func (s *PostgresTestSuite) Test_IdempotencyGet_MissReturnsNil() {
	rec, err := s.idempotency.Get(context.Background(), "mch_1", "unseen-key")
	s.Require().NoError(err)
	s.Nil(rec)
}

func (s *PostgresTestSuite) Test_IdempotencySaveAndGet_RoundTrip() {
	ctx := context.Background()
	saved := s.idempotencyRecord("key-1", `{"payment_id":"pay_1"}`)
	s.Require().NoError(s.idempotency.Save(ctx, saved))

	found, err := s.idempotency.Get(ctx, "mch_1", "key-1")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("mch_1", found.MerchantID)
	s.Equal("key-1", found.Key)
	s.Equal("hash-abc", found.RequestHash)
	s.Equal(201, found.StatusCode)
	// The stored body is the rendered response, byte for byte.
	s.Equal([]byte(`{"payment_id":"pay_1"}`), found.Body)
}

func (s *PostgresTestSuite) Test_IdempotencySave_KeepsFirstWriter() {
	ctx := context.Background()
	s.Require().NoError(s.idempotency.Save(ctx, s.idempotencyRecord("key-1", `{"winner":true}`)))
	s.Require().NoError(s.idempotency.Save(ctx, s.idempotencyRecord("key-1", `{"winner":false}`)))

	found, err := s.idempotency.Get(ctx, "mch_1", "key-1")
	s.Require().NoError(err)
	s.Equal([]byte(`{"winner":true}`), found.Body)
}

func (s *PostgresTestSuite) Test_IdempotencyGet_IgnoresExpired() {
	ctx := context.Background()
	rec := s.idempotencyRecord("key-old", `{}`)
	rec.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	s.Require().NoError(s.idempotency.Save(ctx, rec))

	found, err := s.idempotency.Get(ctx, "mch_1", "key-old")
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *PostgresTestSuite) Test_PruneExpired_LeavesLiveRecords() {
	ctx := context.Background()
	s.Require().NoError(s.idempotency.Save(ctx, s.idempotencyRecord("key-live", `{}`)))

	expired := s.idempotencyRecord("key-dead", `{}`)
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	s.Require().NoError(s.idempotency.Save(ctx, expired))

	pruned, err := s.idempotency.PruneExpired(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pruned)

	live, err := s.idempotency.Get(ctx, "mch_1", "key-live")
	s.Require().NoError(err)
	s.NotNil(live)
}
