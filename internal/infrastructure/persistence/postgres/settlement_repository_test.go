package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) newBatch(merchantID string) *domain.SettlementBatch {
	batch := domain.NewSettlementBatch(merchantID, "USD", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	batch.GrossMinor = 10_000
	batch.FeeMinor = 205
	batch.NetMinor = 9_795
	batch.PaymentCount = 2
	return batch
}

func (s *PostgresTestSuite) Test_CreateBatch_RoundTrip() {
	ctx := context.Background()
	created := s.newBatch("mch_1")
	s.Require().NoError(s.settlements.CreateBatch(ctx, created))

	found, err := s.settlements.FindBatch(ctx, created.BatchID)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(created.BatchID, found.BatchID)
	s.Equal("mch_1", found.MerchantID)
	s.Equal("USD", found.Currency)
	s.Equal(domain.BatchPending, found.Status)
	s.Equal(int64(10_000), found.GrossMinor)
	s.Equal(int64(205), found.FeeMinor)
	s.Equal(int64(9_795), found.NetMinor)
	s.Equal(2, found.PaymentCount)
	// DATE column: the calendar day survives, the clock does not.
	s.Equal("2026-03-10", found.SettlementDate.Format("2006-01-02"))
}

func (s *PostgresTestSuite) Test_FindBatch_Missing() {
	found, err := s.settlements.FindBatch(context.Background(), "batch_nobody")
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *PostgresTestSuite) Test_UpdateBatch_Lifecycle() {
	ctx := context.Background()
	batch := s.newBatch("mch_1")
	s.Require().NoError(s.settlements.CreateBatch(ctx, batch))

	submittedAt := time.Now().UTC()
	s.Require().NoError(batch.Submit("acq-77", submittedAt))
	s.Require().NoError(s.settlements.UpdateBatch(ctx, batch))

	found, err := s.settlements.FindBatch(ctx, batch.BatchID)
	s.Require().NoError(err)
	s.Equal(domain.BatchProcessing, found.Status)
	s.Require().NotNil(found.AcquirerRef)
	s.Equal("acq-77", *found.AcquirerRef)
	s.Require().NotNil(found.SubmittedAt)

	s.Require().NoError(batch.MarkSettled(time.Now().UTC()))
	s.Require().NoError(s.settlements.UpdateBatch(ctx, batch))

	found, err = s.settlements.FindBatch(ctx, batch.BatchID)
	s.Require().NoError(err)
	s.Equal(domain.BatchSettled, found.Status)
	s.NotNil(found.SettledAt)
}

func (s *PostgresTestSuite) Test_ListBatchesByStatus() {
	ctx := context.Background()
	pending := s.newBatch("mch_1")
	s.Require().NoError(s.settlements.CreateBatch(ctx, pending))

	processing := s.newBatch("mch_2")
	s.Require().NoError(processing.Submit("acq-1", time.Now().UTC()))
	s.Require().NoError(s.settlements.CreateBatch(ctx, processing))

	list, err := s.settlements.ListBatchesByStatus(ctx, domain.BatchProcessing, 10)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(processing.BatchID, list[0].BatchID)
}

func (s *PostgresTestSuite) Test_AssignPayments_StampsMembers() {
	ctx := context.Background()
	capturedAt := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)
	first := s.createCapturedPayment("mch_1", 4000, capturedAt)
	second := s.createCapturedPayment("mch_1", 6000, capturedAt.Add(time.Minute))

	batch := s.newBatch("mch_1")
	s.Require().NoError(s.settlements.CreateBatch(ctx, batch))
	s.Require().NoError(s.settlements.AssignPayments(ctx, batch.BatchID, []string{first.PaymentID, second.PaymentID}))

	members, err := s.settlements.PaymentsInBatch(ctx, batch.BatchID)
	s.Require().NoError(err)
	s.Require().Len(members, 2)
	s.Equal(first.PaymentID, members[0].PaymentID)
	s.Equal(second.PaymentID, members[1].PaymentID)
}

func (s *PostgresTestSuite) Test_AssignPayments_RefusesDoubleClaim() {
	ctx := context.Background()
	p := s.createCapturedPayment("mch_1", 4000, time.Now().UTC())

	first := s.newBatch("mch_1")
	s.Require().NoError(s.settlements.CreateBatch(ctx, first))
	s.Require().NoError(s.settlements.AssignPayments(ctx, first.BatchID, []string{p.PaymentID}))

	second := s.newBatch("mch_1")
	s.Require().NoError(s.settlements.CreateBatch(ctx, second))
	err := s.settlements.AssignPayments(ctx, second.BatchID, []string{p.PaymentID})
	s.Require().Error(err)
	s.Contains(err.Error(), "claimed 0 of 1")
}

func (s *PostgresTestSuite) Test_Adjustments_AppliedOnce() {
	ctx := context.Background()
	disputeID := "dsp_itest"
	adj := &domain.SettlementAdjustment{
		MerchantID:  "mch_1",
		Currency:    "USD",
		AmountMinor: -2500,
		Reason:      "chargeback 10.4",
		DisputeID:   &disputeID,
		CreatedAt:   time.Now().UTC(),
	}
	s.Require().NoError(s.settlements.AddAdjustment(ctx, adj))
	s.Positive(adj.ID)

	pending, err := s.settlements.PendingAdjustments(ctx, "mch_1", "USD")
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(int64(-2500), pending[0].AmountMinor)
	s.Equal("chargeback 10.4", pending[0].Reason)
	s.Require().NotNil(pending[0].DisputeID)
	s.Equal(disputeID, *pending[0].DisputeID)

	s.Require().NoError(s.settlements.MarkAdjustmentsApplied(ctx, []int64{adj.ID}, "batch_x"))

	pending, err = s.settlements.PendingAdjustments(ctx, "mch_1", "USD")
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *PostgresTestSuite) Test_PendingAdjustments_ScopedToMerchantAndCurrency() {
	ctx := context.Background()
	mine := &domain.SettlementAdjustment{
		MerchantID: "mch_1", Currency: "USD", AmountMinor: -100, Reason: "chargeback 10.4",
		CreatedAt: time.Now().UTC(),
	}
	otherMerchant := &domain.SettlementAdjustment{
		MerchantID: "mch_2", Currency: "USD", AmountMinor: -200, Reason: "chargeback 10.4",
		CreatedAt: time.Now().UTC(),
	}
	otherCurrency := &domain.SettlementAdjustment{
		MerchantID: "mch_1", Currency: "EUR", AmountMinor: -300, Reason: "chargeback 10.4",
		CreatedAt: time.Now().UTC(),
	}
	for _, adj := range []*domain.SettlementAdjustment{mine, otherMerchant, otherCurrency} {
		s.Require().NoError(s.settlements.AddAdjustment(ctx, adj))
	}

	pending, err := s.settlements.PendingAdjustments(ctx, "mch_1", "USD")
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(mine.ID, pending[0].ID)
}
