package postgres_test

import (
	"context"
	"errors"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) Test_WithinTx_CommitsAllWrites() {
	ctx := context.Background()
	p := s.newPayment("mch_1", 2500)

	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Create(txCtx, p); err != nil {
			return err
		}
		evt := domain.NewEvent(domain.EventPaymentAuthorized, p.PaymentID, "corr-itest", "", nil)
		_, err := s.outbox.Enqueue(txCtx, evt)
		return err
	})
	s.Require().NoError(err)

	found, err := s.payments.FindByPaymentID(ctx, p.PaymentID)
	s.Require().NoError(err)
	s.NotNil(found)

	pending, err := s.outbox.PendingCount(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pending)
}

func (s *PostgresTestSuite) Test_WithinTx_RollsBackOnError() {
	ctx := context.Background()
	p := s.newPayment("mch_1", 2500)
	boom := errors.New("fraud check exploded")

	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Create(txCtx, p); err != nil {
			return err
		}
		evt := domain.NewEvent(domain.EventPaymentAuthorized, p.PaymentID, "corr-itest", "", nil)
		if _, err := s.outbox.Enqueue(txCtx, evt); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	// Neither write survives: the payment and its event commit together or
	// not at all.
	found, err := s.payments.FindByPaymentID(ctx, p.PaymentID)
	s.Require().NoError(err)
	s.Nil(found)

	pending, err := s.outbox.PendingCount(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *PostgresTestSuite) Test_WithinTx_JoinsEnclosingTransaction() {
	ctx := context.Background()
	p := s.newPayment("mch_1", 2500)
	boom := errors.New("outer step failed")

	err := s.tx.WithinTx(ctx, func(outerCtx context.Context) error {
		if err := s.tx.WithinTx(outerCtx, func(innerCtx context.Context) error {
			return s.payments.Create(innerCtx, p)
		}); err != nil {
			return err
		}
		// The inner WithinTx joined the outer transaction, so this error
		// must undo its write too.
		return boom
	})
	s.Require().ErrorIs(err, boom)

	found, err := s.payments.FindByPaymentID(ctx, p.PaymentID)
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *PostgresTestSuite) Test_WithinTx_ReadsSeeUncommittedWrites() {
	ctx := context.Background()
	p := s.newPayment("mch_1", 2500)

	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Create(txCtx, p); err != nil {
			return err
		}
		inside, err := s.payments.FindByPaymentID(txCtx, p.PaymentID)
		if err != nil {
			return err
		}
		s.NotNil(inside)

		// A read outside the transaction context must not see the row yet.
		outside, err := s.payments.FindByPaymentID(ctx, p.PaymentID)
		if err != nil {
			return err
		}
		s.Nil(outside)
		return nil
	})
	s.Require().NoError(err)
}
