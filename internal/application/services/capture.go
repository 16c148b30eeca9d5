package services

import (
	"context"
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

// CaptureService converts an authorization hold into a charge. The payment
// row lock is held across the provider call so concurrent capture, void and
// refund attempts on one payment serialize.
type CaptureService struct {
	tx       application.TxRunner
	payments application.PaymentRepository
	outbox   application.OutboxRepository
	idem     *idempotency.Store
	router   application.PaymentRouter
	bus      application.EventPublisher
	audit    *audit.Log
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewCaptureService(
	tx application.TxRunner,
	payments application.PaymentRepository,
	outbox application.OutboxRepository,
	idem *idempotency.Store,
	router application.PaymentRouter,
	bus application.EventPublisher,
	auditLog *audit.Log,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CaptureService {
	return &CaptureService{
		tx:       tx,
		payments: payments,
		outbox:   outbox,
		idem:     idem,
		router:   router,
		bus:      bus,
		audit:    auditLog,
		metrics:  m,
		logger:   logger,
	}
}

func (s *CaptureService) Capture(ctx context.Context, cmd CaptureCommand) (Result, error) {
	requestHash := idempotency.RequestHash(cmd)

	cached, err := checkIdempotency(ctx, s.idem, cmd.MerchantID, cmd.IdempotencyKey, requestHash)
	if err != nil {
		return Result{}, err
	}
	if cached != nil {
		return *cached, nil
	}

	traceID := tracing.TraceID(ctx)
	var (
		payment  *domain.Payment
		rendered Result
		outboxID int64
		evt      domain.Event
	)

	txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.FindByPaymentIDForUpdate(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}
		if p == nil || p.MerchantID != cmd.MerchantID {
			return application.NewPaymentNotFoundError(cmd.PaymentID)
		}
		if err := p.CanTransitionTo(domain.StatusCaptured); err != nil {
			return err
		}

		res, err := s.router.Capture(ctx, deref(p.PSPName), psp.CaptureRequest{
			PaymentID:     p.PaymentID,
			AuthRef:       deref(p.PSPAuthRef),
			AmountMinor:   p.AmountMinor,
			Currency:      p.Currency,
			CorrelationID: p.CorrelationID,
		})
		if err != nil {
			return err
		}
		if err := p.Capture(res.CaptureRef, time.Now().UTC()); err != nil {
			return err
		}
		if err := s.payments.Update(ctx, p); err != nil {
			return err
		}

		evt = domain.NewEvent(domain.EventPaymentCaptured, p.PaymentID, p.CorrelationID, traceID, domain.PaymentEventPayload(p))
		id, err := s.outbox.Enqueue(ctx, evt)
		if err != nil {
			return err
		}
		outboxID = id

		r, err := render(http.StatusOK, newPaymentResponse(p, traceID))
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
		releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
		return Result{}, normalizeError(txErr)
	}

	releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
	publishBuffered(ctx, s.bus, s.outbox, s.logger, outboxID, evt)
	s.audit.Record(ctx, domain.AuditPaymentCaptured, payment.PaymentID, payment.MerchantID, map[string]any{
		"amount_minor": payment.AmountMinor,
		"currency":     payment.Currency,
		"psp":          deref(payment.PSPName),
	})
	return rendered, nil
}
