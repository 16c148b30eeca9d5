package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/tracing"
)

// OpenDispute records a chargeback the acquirer raised against a settled
// payment. The disputed funds are withheld from settlement only when the case
// is lost; opening the case leaves the ledger untouched.
func (e *Engine) OpenDispute(ctx context.Context, paymentID string, amountMinor int64, reasonCode string, evidenceDue time.Time) (*domain.Dispute, error) {
	payment, err := e.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	if payment == nil {
		return nil, application.NewPaymentNotFoundError(paymentID)
	}
	if payment.Status != domain.StatusSettled && payment.Status != domain.StatusRefunded {
		return nil, application.NewInvalidStateError(
			fmt.Errorf("payment %s is %s; chargebacks arrive only after settlement", paymentID, payment.Status))
	}

	dispute, err := domain.NewDispute(payment, amountMinor, reasonCode, evidenceDue)
	if err != nil {
		return nil, err
	}

	evt := domain.NewEvent(domain.EventDisputeOpened, payment.PaymentID,
		tracing.CorrelationID(ctx), tracing.TraceID(ctx), domain.DisputeEventPayload(dispute))

	var outboxID int64
	txErr := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.disputes.Create(ctx, dispute); err != nil {
			return err
		}
		id, err := e.outbox.Enqueue(ctx, evt)
		outboxID = id
		return err
	})
	if txErr != nil {
		return nil, fmt.Errorf("open dispute for payment %s: %w", paymentID, txErr)
	}

	e.flush(ctx, []int64{outboxID}, []domain.Event{evt})
	e.audit.RecordWorker(ctx, domain.AuditDisputeOpened, payment.PaymentID, payment.MerchantID, map[string]any{
		"dispute_id":   dispute.DisputeID,
		"amount_minor": dispute.AmountMinor,
		"reason_code":  dispute.ReasonCode,
	})
	e.logger.Info("dispute opened",
		"dispute_id", dispute.DisputeID,
		"payment_id", payment.PaymentID,
		"amount_minor", dispute.AmountMinor,
		"reason_code", reasonCode)
	return dispute, nil
}

// SubmitEvidence moves an open case to PENDING_EVIDENCE once the merchant's
// representment has been forwarded to the acquirer.
func (e *Engine) SubmitEvidence(ctx context.Context, disputeID string) (*domain.Dispute, error) {
	dispute, err := e.disputes.FindByDisputeID(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("load dispute %s: %w", disputeID, err)
	}
	if dispute == nil {
		return nil, application.NewDisputeNotFoundError(disputeID)
	}
	if err := dispute.SubmitEvidence(); err != nil {
		return nil, err
	}
	if err := e.disputes.Update(ctx, dispute); err != nil {
		return nil, fmt.Errorf("update dispute %s: %w", disputeID, err)
	}
	return dispute, nil
}

// CloseDispute resolves a case as WON or LOST. Losing writes a negative
// adjustment line that the next cut-off for the merchant and currency folds
// into its batch; the original payment row is never touched.
func (e *Engine) CloseDispute(ctx context.Context, disputeID string, outcome domain.DisputeStatus) (*domain.Dispute, error) {
	dispute, err := e.disputes.FindByDisputeID(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("load dispute %s: %w", disputeID, err)
	}
	if dispute == nil {
		return nil, application.NewDisputeNotFoundError(disputeID)
	}
	if err := dispute.Close(outcome, time.Now().UTC()); err != nil {
		return nil, err
	}

	evt := domain.NewEvent(domain.EventDisputeClosed, dispute.PaymentID,
		tracing.CorrelationID(ctx), tracing.TraceID(ctx), domain.DisputeEventPayload(dispute))

	var outboxID int64
	txErr := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.disputes.Update(ctx, dispute); err != nil {
			return err
		}
		if outcome == domain.DisputeLost {
			adj := &domain.SettlementAdjustment{
				MerchantID:  dispute.MerchantID,
				Currency:    dispute.Currency,
				AmountMinor: -dispute.AmountMinor,
				Reason:      "chargeback " + dispute.ReasonCode,
				DisputeID:   &dispute.DisputeID,
				CreatedAt:   time.Now().UTC(),
			}
			if err := e.batches.AddAdjustment(ctx, adj); err != nil {
				return err
			}
		}
		id, err := e.outbox.Enqueue(ctx, evt)
		outboxID = id
		return err
	})
	if txErr != nil {
		return nil, fmt.Errorf("close dispute %s: %w", disputeID, txErr)
	}

	e.flush(ctx, []int64{outboxID}, []domain.Event{evt})
	e.audit.RecordWorker(ctx, domain.AuditDisputeClosed, dispute.PaymentID, dispute.MerchantID, map[string]any{
		"dispute_id":   dispute.DisputeID,
		"outcome":      string(outcome),
		"amount_minor": dispute.AmountMinor,
	})
	e.logger.Info("dispute closed",
		"dispute_id", dispute.DisputeID,
		"payment_id", dispute.PaymentID,
		"outcome", string(outcome))
	return dispute, nil
}
