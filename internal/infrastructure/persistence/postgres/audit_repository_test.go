package postgres_test

import (
	"context"
	"time"

	"github.com/meridianpay/gateway/internal/domain"
)

func (s *PostgresTestSuite) Test_AuditAppendAndList_OrdersByTime() {
	ctx := context.Background()

	first := domain.NewAuditEntry(domain.AuditPaymentAuthorized, "pay_1", "mch_1",
		domain.ActorMerchant, "mch_1", "corr-itest", map[string]any{"psp": "alpha"})
	first.RecordedAt = time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.audit.Append(ctx, first))

	second := domain.NewAuditEntry(domain.AuditPaymentCaptured, "pay_1", "mch_1",
		domain.ActorMerchant, "mch_1", "corr-itest", map[string]any{"capture_ref": "cap-1"})
	second.RecordedAt = first.RecordedAt.Add(time.Minute)
	s.Require().NoError(s.audit.Append(ctx, second))

	s.Require().NoError(s.audit.Append(ctx, domain.NewAuditEntry(
		domain.AuditPaymentAuthorized, "pay_other", "mch_1",
		domain.ActorMerchant, "mch_1", "corr-x", nil)))

	entries, err := s.audit.ListByPaymentID(ctx, "pay_1")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	s.Equal(domain.AuditPaymentAuthorized, entries[0].Action)
	s.Equal("alpha", entries[0].Details["psp"])
	s.Equal(domain.ActorMerchant, entries[0].ActorType)
	s.Equal(domain.AuditPaymentCaptured, entries[1].Action)
	s.Equal("cap-1", entries[1].Details["capture_ref"])
}

func (s *PostgresTestSuite) Test_AuditTrail_RejectsUpdates() {
	ctx := context.Background()
	entry := domain.NewAuditEntry(domain.AuditPaymentAuthorized, "pay_1", "mch_1",
		domain.ActorSystem, "", "corr-itest", nil)
	s.Require().NoError(s.audit.Append(ctx, entry))

	_, err := s.td.DB.Pool.Exec(ctx, `UPDATE audit_entries SET action = 'payment.captured' WHERE id = $1`, entry.ID)
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")
}

func (s *PostgresTestSuite) Test_AuditTrail_RejectsDeletes() {
	ctx := context.Background()
	entry := domain.NewAuditEntry(domain.AuditPaymentAuthorized, "pay_1", "mch_1",
		domain.ActorSystem, "", "corr-itest", nil)
	s.Require().NoError(s.audit.Append(ctx, entry))

	_, err := s.td.DB.Pool.Exec(ctx, `DELETE FROM audit_entries WHERE id = $1`, entry.ID)
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")
}
