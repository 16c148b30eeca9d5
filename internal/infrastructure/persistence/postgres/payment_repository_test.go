package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) Test_CreatePayment_RoundTrip() {
	ctx := context.Background()
	created := s.createPayment("mch_1", 2500)

	found, err := s.payments.FindByPaymentID(ctx, created.PaymentID)
	s.Require().NoError(err)
	s.Require().NotNil(found)

	s.Equal(created.ID, found.ID)
	s.Equal(created.PaymentID, found.PaymentID)
	s.Equal("mch_1", found.MerchantID)
	s.Equal(int64(2500), found.AmountMinor)
	s.Equal("USD", found.Currency)
	s.Equal(domain.StatusPending, found.Status)
	s.Equal("tok_itest", found.CardToken)
	s.Equal("4242", found.CardLastFour)
	s.Equal(domain.BrandVisa, found.CardBrand)
	s.Equal("corr-itest", found.CorrelationID)
	s.Zero(found.RefundedMinor)
	s.Nil(found.PSPName)
	s.WithinDuration(created.CreatedAt, found.CreatedAt, time.Second)
}

func (s *PostgresTestSuite) Test_FindPayment_Missing() {
	found, err := s.payments.FindByPaymentID(context.Background(), "pay_nobody")
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *PostgresTestSuite) Test_UpdatePayment_PersistsTransition() {
	ctx := context.Background()
	p := s.createPayment("mch_1", 2500)

	now := time.Now().UTC()
	s.Require().NoError(p.Authorize("alpha", "auth-9", now))
	s.Require().NoError(s.payments.Update(ctx, p))

	found, err := s.payments.FindByPaymentID(ctx, p.PaymentID)
	s.Require().NoError(err)
	s.Equal(domain.StatusAuthorized, found.Status)
	s.Require().NotNil(found.PSPName)
	s.Equal("alpha", *found.PSPName)
	s.Require().NotNil(found.PSPAuthRef)
	s.Equal("auth-9", *found.PSPAuthRef)
	s.Require().NotNil(found.AuthorizedAt)
	s.WithinDuration(now, *found.AuthorizedAt, time.Second)
}

func (s *PostgresTestSuite) Test_UpdatePayment_UnknownRow() {
	p := s.newPayment("mch_1", 2500)
	err := s.payments.Update(context.Background(), p)
	s.Require().Error(err)
	s.Contains(err.Error(), "no row")
}

func (s *PostgresTestSuite) Test_FindForUpdate_LocksRow() {
	ctx := context.Background()
	p := s.createPayment("mch_1", 2500)

	// The lock only exists inside a transaction; outside one the query
	// still reads the row.
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		locked, err := s.payments.FindByPaymentIDForUpdate(txCtx, p.PaymentID)
		s.Require().NoError(err)
		s.Require().NotNil(locked)
		s.Equal(p.PaymentID, locked.PaymentID)
		return nil
	})
	s.Require().NoError(err)
}

func (s *PostgresTestSuite) Test_ListPayments_PagesNewestFirst() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		p := s.newPayment("mch_1", 1000+int64(i))
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		p.UpdatedAt = p.CreatedAt
		s.Require().NoError(s.payments.Create(ctx, p))
		ids = append(ids, p.PaymentID)
	}
	s.createPayment("mch_other", 9999)

	page, total, err := s.payments.List(ctx, application.TransactionFilter{
		MerchantID: "mch_1",
		Limit:      2,
		Offset:     1,
	})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(page, 2)
	s.Equal(ids[1], page[0].PaymentID)
	s.Equal(ids[0], page[1].PaymentID)
}

func (s *PostgresTestSuite) Test_ListPayments_FiltersByStatusAndWindow() {
	ctx := context.Background()
	captured := s.createCapturedPayment("mch_1", 2500, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	s.createPayment("mch_1", 1000)

	byStatus, total, err := s.payments.List(ctx, application.TransactionFilter{
		MerchantID: "mch_1",
		Status:     domain.StatusCaptured,
		Limit:      10,
	})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(byStatus, 1)
	s.Equal(captured.PaymentID, byStatus[0].PaymentID)

	_, total, err = s.payments.List(ctx, application.TransactionFilter{
		MerchantID: "mch_1",
		From:       time.Now().UTC().Add(time.Hour),
		Limit:      10,
	})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *PostgresTestSuite) Test_CapturedForSettlement_ScansEligible() {
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	late := s.createCapturedPayment("mch_1", 3000, cutoff.Add(-time.Hour))
	early := s.createCapturedPayment("mch_1", 2000, cutoff.Add(-2*time.Hour))
	s.createCapturedPayment("mch_1", 4000, cutoff.Add(time.Hour))
	s.createPayment("mch_1", 5000)

	claimed := s.createCapturedPayment("mch_1", 6000, cutoff.Add(-3*time.Hour))
	batch := domain.NewSettlementBatch("mch_1", "USD", cutoff)
	batch.GrossMinor = 6000
	batch.NetMinor = 6000
	batch.PaymentCount = 1
	s.Require().NoError(s.settlements.CreateBatch(ctx, batch))
	s.Require().NoError(s.settlements.AssignPayments(ctx, batch.BatchID, []string{claimed.PaymentID}))

	due, err := s.payments.CapturedForSettlement(ctx, cutoff, 10)
	s.Require().NoError(err)
	s.Require().Len(due, 2)
	// Oldest capture first.
	s.Equal(early.PaymentID, due[0].PaymentID)
	s.Equal(late.PaymentID, due[1].PaymentID)
}
