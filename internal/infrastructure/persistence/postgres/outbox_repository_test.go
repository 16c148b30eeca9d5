package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) enqueueEvent(eventType domain.EventType, partitionKey string) (domain.Event, int64) {
	evt := domain.NewEvent(eventType, partitionKey, "corr-itest", "trace-itest", map[string]any{
		"payment_id": partitionKey,
		"status":     "AUTHORIZED",
	})
	id, err := s.outbox.Enqueue(context.Background(), evt)
	s.Require().NoError(err)
	s.Positive(id)
	return evt, id
}

func (s *PostgresTestSuite) Test_OutboxEnqueueAndDue_RoundTrip() {
	ctx := context.Background()
	evt, id := s.enqueueEvent(domain.EventPaymentAuthorized, "pay_1")

	due, err := s.outbox.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)

	entry := due[0]
	s.Equal(id, entry.ID)
	s.Equal(evt.EventID, entry.Event.EventID)
	s.Equal(domain.EventPaymentAuthorized, entry.Event.EventType)
	s.Equal(1, entry.Event.SchemaVersion)
	s.Equal("pay_1", entry.Event.PartitionKey)
	s.Equal("corr-itest", entry.Event.CorrelationID)
	s.Equal("trace-itest", entry.Event.TraceID)
	s.Equal("pay_1", entry.Event.Payload["payment_id"])
	s.Equal("AUTHORIZED", entry.Event.Payload["status"])
	s.Zero(entry.Attempts)
	s.Nil(entry.PublishedAt)
}

func (s *PostgresTestSuite) Test_OutboxDue_PreservesInsertionOrder() {
	ctx := context.Background()
	_, firstID := s.enqueueEvent(domain.EventPaymentAuthorized, "pay_1")
	_, secondID := s.enqueueEvent(domain.EventPaymentCaptured, "pay_1")

	due, err := s.outbox.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 2)
	s.Equal(firstID, due[0].ID)
	s.Equal(secondID, due[1].ID)
}

func (s *PostgresTestSuite) Test_OutboxMarkPublished_ClearsBacklog() {
	ctx := context.Background()
	_, id := s.enqueueEvent(domain.EventPaymentAuthorized, "pay_1")

	s.Require().NoError(s.outbox.MarkPublished(ctx, id))

	due, err := s.outbox.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Empty(due)

	pending, err := s.outbox.PendingCount(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	// Publishing twice is harmless.
	s.Require().NoError(s.outbox.MarkPublished(ctx, id))
}

func (s *PostgresTestSuite) Test_OutboxReschedule_DelaysRetry() {
	ctx := context.Background()
	_, id := s.enqueueEvent(domain.EventPaymentAuthorized, "pay_1")

	now := time.Now().UTC()
	s.Require().NoError(s.outbox.Reschedule(ctx, id, now.Add(5*time.Minute), "broker unreachable"))

	due, err := s.outbox.Due(ctx, now.Add(time.Second), 10)
	s.Require().NoError(err)
	s.Empty(due)

	due, err = s.outbox.Due(ctx, now.Add(6*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(1, due[0].Attempts)
	s.Require().NotNil(due[0].LastError)
	s.Equal("broker unreachable", *due[0].LastError)

	pending, err := s.outbox.PendingCount(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pending)
}

func (s *PostgresTestSuite) Test_OutboxEnqueue_RejectsDuplicateEventID() {
	ctx := context.Background()
	evt, _ := s.enqueueEvent(domain.EventPaymentAuthorized, "pay_1")

	_, err := s.outbox.Enqueue(ctx, evt)
	s.Require().Error(err)
}
