package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) newRefund(p *domain.Payment, amountMinor int64) *domain.Refund {
	ref, err := domain.NewRefund(p, amountMinor, "requested_by_customer", "corr-itest")
	s.Require().NoError(err)
	return ref
}

func (s *PostgresTestSuite) Test_CreateRefund_RoundTrip() {
	ctx := context.Background()
	p := s.createCapturedPayment("mch_1", 5000, time.Now().UTC())

	created := s.newRefund(p, 1500)
	s.Require().NoError(s.refunds.Create(ctx, created))

	found, err := s.refunds.FindByRefundID(ctx, created.RefundID)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(created.RefundID, found.RefundID)
	s.Equal(p.PaymentID, found.PaymentID)
	s.Equal("mch_1", found.MerchantID)
	s.Equal(int64(1500), found.AmountMinor)
	s.Equal("USD", found.Currency)
	s.Equal(domain.RefundPending, found.Status)
	s.Equal("requested_by_customer", found.Reason)
	s.Nil(found.PSPRef)
}

func (s *PostgresTestSuite) Test_FindRefund_Missing() {
	found, err := s.refunds.FindByRefundID(context.Background(), "ref_nobody")
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *PostgresTestSuite) Test_UpdateRefund_Completes() {
	ctx := context.Background()
	p := s.createCapturedPayment("mch_1", 5000, time.Now().UTC())
	ref := s.newRefund(p, 1500)
	s.Require().NoError(s.refunds.Create(ctx, ref))

	completedAt := time.Now().UTC()
	s.Require().NoError(ref.Complete("psp-ref-1", completedAt))
	s.Require().NoError(s.refunds.Update(ctx, ref))

	found, err := s.refunds.FindByRefundID(ctx, ref.RefundID)
	s.Require().NoError(err)
	s.Equal(domain.RefundCompleted, found.Status)
	s.Require().NotNil(found.PSPRef)
	s.Equal("psp-ref-1", *found.PSPRef)
	s.Require().NotNil(found.CompletedAt)
	s.WithinDuration(completedAt, *found.CompletedAt, time.Second)
}

func (s *PostgresTestSuite) Test_ListRefundsByPayment_OldestFirst() {
	ctx := context.Background()
	p := s.createCapturedPayment("mch_1", 5000, time.Now().UTC())

	first := s.newRefund(p, 1000)
	first.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first.UpdatedAt = first.CreatedAt
	s.Require().NoError(s.refunds.Create(ctx, first))

	second := s.newRefund(p, 2000)
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	second.UpdatedAt = second.CreatedAt
	s.Require().NoError(s.refunds.Create(ctx, second))

	list, err := s.refunds.ListByPaymentID(ctx, p.PaymentID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.RefundID, list[0].RefundID)
	s.Equal(second.RefundID, list[1].RefundID)
}

func (s *PostgresTestSuite) Test_SumActive_CountsPendingAndCompleted() {
	ctx := context.Background()
	p := s.createCapturedPayment("mch_1", 10_000, time.Now().UTC())

	pending := s.newRefund(p, 300)
	s.Require().NoError(s.refunds.Create(ctx, pending))

	completed := s.newRefund(p, 200)
	s.Require().NoError(completed.Complete("psp-ref-2", time.Now().UTC()))
	s.Require().NoError(s.refunds.Create(ctx, completed))

	failed := s.newRefund(p, 500)
	s.Require().NoError(failed.Fail())
	s.Require().NoError(s.refunds.Create(ctx, failed))

	sum, err := s.refunds.SumActive(ctx, p.PaymentID)
	s.Require().NoError(err)
	// The failed refund's reservation is released.
	s.Equal(int64(500), sum)
}

func (s *PostgresTestSuite) Test_SumActive_ZeroWithoutRefunds() {
	ctx := context.Background()
	p := s.createCapturedPayment("mch_1", 10_000, time.Now().UTC())

	sum, err := s.refunds.SumActive(ctx, p.PaymentID)
	s.Require().NoError(err)
	s.Zero(sum)
}
