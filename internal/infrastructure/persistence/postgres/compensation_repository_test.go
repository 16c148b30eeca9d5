package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) Test_CompensationEnqueueAndDue_RoundTrip() {
	ctx := context.Background()
	task := domain.NewCompensationTask("pay_1", domain.CompensationVoidAuth, map[string]any{
		"psp":      "alpha",
		"auth_ref": "auth-9",
	})
	s.Require().NoError(s.compensation.Enqueue(ctx, task))
	s.Positive(task.ID)

	due, err := s.compensation.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(task.ID, due[0].ID)
	s.Equal("pay_1", due[0].PaymentID)
	s.Equal(domain.CompensationVoidAuth, due[0].Action)
	s.Equal("alpha", due[0].Params["psp"])
	s.Equal("auth-9", due[0].Params["auth_ref"])
	s.Equal(domain.CompensationPending, due[0].Status)
}

func (s *PostgresTestSuite) Test_CompensationReschedule_DelaysRetry() {
	ctx := context.Background()
	task := domain.NewCompensationTask("pay_1", domain.CompensationVoidAuth, nil)
	s.Require().NoError(s.compensation.Enqueue(ctx, task))

	now := time.Now().UTC()
	task.Reschedule(now.Add(10*time.Minute), "psp returned 503")
	s.Require().NoError(s.compensation.Update(ctx, task))

	due, err := s.compensation.Due(ctx, now.Add(time.Second), 10)
	s.Require().NoError(err)
	s.Empty(due)

	due, err = s.compensation.Due(ctx, now.Add(11*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(1, due[0].Attempts)
	s.Require().NotNil(due[0].LastError)
	s.Equal("psp returned 503", *due[0].LastError)
}

func (s *PostgresTestSuite) Test_CompensationComplete_LeavesQueue() {
	ctx := context.Background()
	task := domain.NewCompensationTask("pay_1", domain.CompensationVoidAuth, nil)
	s.Require().NoError(s.compensation.Enqueue(ctx, task))

	task.Complete()
	s.Require().NoError(s.compensation.Update(ctx, task))

	due, err := s.compensation.Due(ctx, time.Now().UTC().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Empty(due)
	s.Equal(int64(1), s.countRows("compensation_tasks", "status = $1", string(domain.CompensationCompleted)))
}

func (s *PostgresTestSuite) Test_DeadLetterAdd_AssignsID() {
	ctx := context.Background()
	entry := &domain.DeadLetter{
		Operation:    "psp.void_authorization",
		PaymentID:    "pay_1",
		Payload:      map[string]any{"auth_ref": "auth-9"},
		FailureChain: "void authorization: psp alpha: status 500: maintenance",
		CreatedAt:    time.Now().UTC(),
	}
	s.Require().NoError(s.deadLetters.Add(ctx, entry))
	s.Positive(entry.ID)
	s.Equal(int64(1), s.countRows("dead_letters", "payment_id = $1", "pay_1"))
}
