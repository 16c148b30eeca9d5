package audit

import (
	"context"
	"log/slog"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/tracing"
)

// Log appends audit entries. Writing the trail never fails the operation it
// records: a failed append is logged at error level and dropped, the business
// result stands.
type Log struct {
	repo   application.AuditRepository
	logger *slog.Logger
}

func NewLog(repo application.AuditRepository, logger *slog.Logger) *Log {
	return &Log{repo: repo, logger: logger}
}

// Record redacts details, stamps actor and correlation metadata from the
// context, and appends the entry.
func (l *Log) Record(ctx context.Context, action domain.AuditAction, paymentID, merchantID string, details map[string]any) {
	actorType, actorID := domain.ActorSystem, "gateway"
	if id, ok := tracing.MerchantID(ctx); ok {
		actorType, actorID = domain.ActorMerchant, id
	}

	entry := domain.NewAuditEntry(
		action,
		paymentID,
		merchantID,
		actorType,
		actorID,
		tracing.CorrelationID(ctx),
		RedactDetails(details),
	)

	if err := l.repo.Append(ctx, entry); err != nil {
		l.logger.Error("audit append failed",
			"action", string(action),
			"payment_id", paymentID,
			"error", err)
	}
}

// RecordWorker is Record for background workers, which have no merchant in
// their context.
func (l *Log) RecordWorker(ctx context.Context, action domain.AuditAction, paymentID, merchantID string, details map[string]any) {
	entry := domain.NewAuditEntry(
		action,
		paymentID,
		merchantID,
		domain.ActorWorker,
		"gateway-worker",
		tracing.CorrelationID(ctx),
		RedactDetails(details),
	)

	if err := l.repo.Append(ctx, entry); err != nil {
		l.logger.Error("audit append failed",
			"action", string(action),
			"payment_id", paymentID,
			"error", err)
	}
}
