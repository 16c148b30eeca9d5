package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/audit"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/idempotency"
	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/psp"
	"github.com/meridianpay/gateway/internal/tracing"
)

// RefundService returns captured funds. The refund amount is reserved as a
// PENDING row under the payment row lock before the provider is contacted,
// so the provider call itself runs without holding any lock; a second
// transaction resolves the refund. PENDING rows count against the captured
// amount, which is what keeps concurrent refunds from overshooting.
type RefundService struct {
	tx       application.TxRunner
	payments application.PaymentRepository
	refunds  application.RefundRepository
	outbox   application.OutboxRepository
	idem     *idempotency.Store
	router   application.PaymentRouter
	bus      application.EventPublisher
	audit    *audit.Log
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewRefundService(
	tx application.TxRunner,
	payments application.PaymentRepository,
	refunds application.RefundRepository,
	outbox application.OutboxRepository,
	idem *idempotency.Store,
	router application.PaymentRouter,
	bus application.EventPublisher,
	auditLog *audit.Log,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RefundService {
	return &RefundService{
		tx:       tx,
		payments: payments,
		refunds:  refunds,
		outbox:   outbox,
		idem:     idem,
		router:   router,
		bus:      bus,
		audit:    auditLog,
		metrics:  m,
		logger:   logger,
	}
}

func (s *RefundService) Refund(ctx context.Context, cmd RefundCommand) (Result, error) {
	requestHash := idempotency.RequestHash(cmd)

	cached, err := checkIdempotency(ctx, s.idem, cmd.MerchantID, cmd.IdempotencyKey, requestHash)
	if err != nil {
		return Result{}, err
	}
	if cached != nil {
		return *cached, nil
	}

	if cmd.AmountMinor <= 0 {
		releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
		return Result{}, application.NewValidationError("refund request rejected", map[string]string{
			"amount_minor": "must be a positive number of minor units",
		})
	}

	payment, refund, err := s.reserve(ctx, cmd)
	if err != nil {
		releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
		return Result{}, normalizeError(err)
	}

	s.audit.Record(ctx, domain.AuditRefundRequested, payment.PaymentID, payment.MerchantID, map[string]any{
		"refund_id":    refund.RefundID,
		"amount_minor": refund.AmountMinor,
		"currency":     refund.Currency,
		"reason":       refund.Reason,
	})

	pspRes, pspErr := s.router.Refund(ctx, deref(payment.PSPName), psp.RefundRequest{
		PaymentID:     payment.PaymentID,
		RefundID:      refund.RefundID,
		CaptureRef:    deref(payment.PSPCaptureRef),
		AmountMinor:   refund.AmountMinor,
		Currency:      refund.Currency,
		CorrelationID: refund.CorrelationID,
	})

	rendered, err := s.resolve(ctx, cmd, requestHash, refund, pspRes, pspErr)
	if err != nil {
		// The PENDING row still reserves the amount; reconciliation will
		// resolve it from the provider's record.
		releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
		return Result{}, normalizeError(err)
	}

	releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
	return rendered, nil
}

// reserve inserts the PENDING refund under the payment row lock. A payment
// already refunded in full fails the ledger check, never the status check,
// so the caller sees the refundable balance it exceeded.
func (s *RefundService) reserve(ctx context.Context, cmd RefundCommand) (*domain.Payment, *domain.Refund, error) {
	var (
		payment *domain.Payment
		refund  *domain.Refund
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.FindByPaymentIDForUpdate(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}
		if p == nil || p.MerchantID != cmd.MerchantID {
			return application.NewPaymentNotFoundError(cmd.PaymentID)
		}
		switch p.Status {
		case domain.StatusCaptured, domain.StatusSettled, domain.StatusRefunded:
		default:
			return domain.NewInvalidTransitionError(p.Status, domain.StatusRefunded)
		}

		active, err := s.refunds.SumActive(ctx, p.PaymentID)
		if err != nil {
			return err
		}
		if active+cmd.AmountMinor > p.AmountMinor {
			return domain.NewRefundExceedsAmountError(active+cmd.AmountMinor, p.AmountMinor)
		}

		r, err := domain.NewRefund(p, cmd.AmountMinor, cmd.Reason, tracing.CorrelationID(ctx))
		if err != nil {
			return err
		}
		if err := s.refunds.Create(ctx, r); err != nil {
			return err
		}
		payment, refund = p, r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return payment, refund, nil
}

// resolve completes or fails the reserved refund under a fresh row lock and
// persists the rendered outcome atomically with it.
func (s *RefundService) resolve(ctx context.Context, cmd RefundCommand, requestHash string, refund *domain.Refund, pspRes psp.RefundResult, pspErr error) (Result, error) {
	traceID := tracing.TraceID(ctx)
	var (
		rendered Result
		outboxID int64
		evt      domain.Event
		payment  *domain.Payment
	)

	txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.FindByPaymentIDForUpdate(ctx, refund.PaymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("payment %s vanished while refund %s was in flight", refund.PaymentID, refund.RefundID)
		}

		if pspErr != nil {
			if err := refund.Fail(); err != nil {
				return err
			}
			if err := s.refunds.Update(ctx, refund); err != nil {
				return err
			}
			evt = domain.NewEvent(domain.EventRefundFailed, p.PaymentID, refund.CorrelationID, traceID, domain.RefundEventPayload(refund, p.AmountMinor-p.RefundedMinor))
		} else {
			if err := refund.Complete(pspRes.RefundRef, time.Now().UTC()); err != nil {
				return err
			}
			if err := p.ApplyRefund(refund.AmountMinor); err != nil {
				return err
			}
			if err := s.refunds.Update(ctx, refund); err != nil {
				return err
			}
			if err := s.payments.Update(ctx, p); err != nil {
				return err
			}
			evt = domain.NewEvent(domain.EventRefundCompleted, p.PaymentID, refund.CorrelationID, traceID, domain.RefundEventPayload(refund, p.AmountMinor-p.RefundedMinor))
		}

		id, err := s.outbox.Enqueue(ctx, evt)
		if err != nil {
			return err
		}
		outboxID = id

		status := http.StatusCreated
		if refund.Status == domain.RefundFailed {
			status = http.StatusBadGateway
		}
		r, err := render(status, newRefundResponse(refund, traceID))
		if err != nil {
			return err
		}
		if cmd.IdempotencyKey != "" {
			rec := s.idem.Snapshot(cmd.MerchantID, cmd.IdempotencyKey, requestHash, r.StatusCode, r.Body)
			if err := s.idem.SaveRecord(ctx, rec); err != nil {
				return err
			}
		}
		payment, rendered = p, r
		return nil
	})
	if txErr != nil {
		return Result{}, txErr
	}

	publishBuffered(ctx, s.bus, s.outbox, s.logger, outboxID, evt)
	s.metrics.RefundsTotal.WithLabelValues(string(refund.Status)).Inc()

	if refund.Status == domain.RefundCompleted {
		s.audit.Record(ctx, domain.AuditRefundCompleted, payment.PaymentID, payment.MerchantID, map[string]any{
			"refund_id":       refund.RefundID,
			"amount_minor":    refund.AmountMinor,
			"currency":        refund.Currency,
			"payment_status":  string(payment.Status),
			"remaining_minor": payment.AmountMinor - payment.RefundedMinor,
		})
	} else {
		s.logger.Error("refund rejected by provider",
			"refund_id", refund.RefundID,
			"payment_id", refund.PaymentID,
			"error", pspErr)
		s.audit.Record(ctx, domain.AuditRefundFailed, payment.PaymentID, payment.MerchantID, map[string]any{
			"refund_id":    refund.RefundID,
			"amount_minor": refund.AmountMinor,
			"currency":     refund.Currency,
		})
	}
	return rendered, nil
}
