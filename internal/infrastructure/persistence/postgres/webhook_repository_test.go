package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) queueDelivery(evt domain.Event, merchantID string) *domain.WebhookDelivery {
	d := domain.NewWebhookDelivery(merchantID, "https://merchant.example/hooks", evt, []byte(`{"signed":"bytes"}`))
	s.Require().NoError(s.webhooks.Enqueue(context.Background(), d))
	return d
}

func (s *PostgresTestSuite) Test_WebhookEnqueue_DedupesPerEventAndMerchant() {
	ctx := context.Background()
	evt := domain.NewEvent(domain.EventPaymentCaptured, "pay_1", "corr", "trace", nil)

	s.queueDelivery(evt, "mch_1")
	// A replayed consume queues the same event again; the unique key keeps
	// one row per merchant.
	s.queueDelivery(evt, "mch_1")
	s.queueDelivery(evt, "mch_2")

	due, err := s.webhooks.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Len(due, 2)
}

func (s *PostgresTestSuite) Test_WebhookDue_SkipsDeliveredAndFuture() {
	ctx := context.Background()

	delivered := s.queueDelivery(domain.NewEvent(domain.EventPaymentCaptured, "pay_1", "", "", nil), "mch_1")
	delivered.MarkDelivered(time.Now().UTC())
	s.Require().NoError(s.webhooks.Update(ctx, delivered))

	future := domain.NewWebhookDelivery("mch_1", "https://merchant.example/hooks",
		domain.NewEvent(domain.EventPaymentSettled, "pay_2", "", "", nil), []byte(`{}`))
	future.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	s.Require().NoError(s.webhooks.Enqueue(ctx, future))

	ready := s.queueDelivery(domain.NewEvent(domain.EventRefundCompleted, "pay_3", "", "", nil), "mch_1")

	due, err := s.webhooks.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(ready.ID, due[0].ID)
	s.Equal(domain.EventRefundCompleted, due[0].EventType)
	// Payload bytes answer back untouched; the delivery signature depends
	// on it.
	s.Equal([]byte(`{"signed":"bytes"}`), due[0].Payload)
}

func (s *PostgresTestSuite) Test_WebhookUpdate_PersistsRetryState() {
	ctx := context.Background()
	d := s.queueDelivery(domain.NewEvent(domain.EventPaymentCaptured, "pay_1", "", "", nil), "mch_1")

	d.Reschedule(time.Now().UTC().Add(2*time.Minute), "connection refused")
	s.Require().NoError(s.webhooks.Update(ctx, d))

	due, err := s.webhooks.Due(ctx, time.Now().UTC().Add(3*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(1, due[0].Attempts)
	s.Require().NotNil(due[0].LastError)
	s.Equal("connection refused", *due[0].LastError)
}

func (s *PostgresTestSuite) Test_WebhookUpdate_AbandonedLeavesQueue() {
	ctx := context.Background()
	d := s.queueDelivery(domain.NewEvent(domain.EventPaymentCaptured, "pay_1", "", "", nil), "mch_1")

	d.Abandon("endpoint gone")
	s.Require().NoError(s.webhooks.Update(ctx, d))

	due, err := s.webhooks.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Empty(due)
	s.Equal(int64(1), s.countRows("webhook_deliveries", "status = $1", string(domain.DeliveryAbandoned)))
}

func (s *PostgresTestSuite) Test_WebhookUpdate_UnknownRow() {
	d := domain.NewWebhookDelivery("mch_1", "https://merchant.example/hooks",
		domain.NewEvent(domain.EventPaymentCaptured, "pay_1", "", "", nil), []byte(`{}`))

	err := s.webhooks.Update(context.Background(), d)
	s.Require().Error(err)
	s.Contains(err.Error(), "no row")
}
