package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/meridianpay/gateway/internal/domain"
)

func toPaymentModel(p *domain.Payment) *paymentModel {
	var decline *string
	if p.DeclineReason != nil {
		s := string(*p.DeclineReason)
		decline = &s
	}
	return &paymentModel{
		ID:             p.ID,
		PaymentID:      p.PaymentID,
		MerchantID:     p.MerchantID,
		AmountMinor:    p.AmountMinor,
		Currency:       p.Currency,
		Status:         string(p.Status),
		CardToken:      p.CardToken,
		CardLastFour:   p.CardLastFour,
		CardBrand:      string(p.CardBrand),
		PSPName:        p.PSPName,
		PSPAuthRef:     p.PSPAuthRef,
		PSPCaptureRef:  p.PSPCaptureRef,
		PSPVoidRef:     p.PSPVoidRef,
		FraudScore:     p.FraudScore,
		FraudDegraded:  p.FraudDegraded,
		ThreeDSOutcome: p.ThreeDSOutcome,
		DeclineReason:  decline,
		RefundedMinor:  p.RefundedMinor,
		CorrelationID:  p.CorrelationID,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		AuthorizedAt:   p.AuthorizedAt,
		CapturedAt:     p.CapturedAt,
		SettledAt:      p.SettledAt,
	}
}

func toDomainPayment(m paymentModel) *domain.Payment {
	var decline *domain.DeclineCode
	if m.DeclineReason != nil {
		c := domain.DeclineCode(*m.DeclineReason)
		decline = &c
	}
	return &domain.Payment{
		ID:             m.ID,
		PaymentID:      m.PaymentID,
		MerchantID:     m.MerchantID,
		AmountMinor:    m.AmountMinor,
		Currency:       m.Currency,
		Status:         domain.PaymentStatus(m.Status),
		CardToken:      m.CardToken,
		CardLastFour:   m.CardLastFour,
		CardBrand:      domain.CardBrand(m.CardBrand),
		PSPName:        m.PSPName,
		PSPAuthRef:     m.PSPAuthRef,
		PSPCaptureRef:  m.PSPCaptureRef,
		PSPVoidRef:     m.PSPVoidRef,
		FraudScore:     m.FraudScore,
		FraudDegraded:  m.FraudDegraded,
		ThreeDSOutcome: m.ThreeDSOutcome,
		DeclineReason:  decline,
		RefundedMinor:  m.RefundedMinor,
		CorrelationID:  m.CorrelationID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		AuthorizedAt:   m.AuthorizedAt,
		CapturedAt:     m.CapturedAt,
		SettledAt:      m.SettledAt,
	}
}

func toRefundModel(r *domain.Refund) *refundModel {
	return &refundModel{
		ID:            r.ID,
		RefundID:      r.RefundID,
		PaymentID:     r.PaymentID,
		MerchantID:    r.MerchantID,
		AmountMinor:   r.AmountMinor,
		Currency:      r.Currency,
		Status:        string(r.Status),
		PSPRef:        r.PSPRef,
		Reason:        r.Reason,
		CorrelationID: r.CorrelationID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		CompletedAt:   r.CompletedAt,
	}
}

func toDomainRefund(m refundModel) *domain.Refund {
	return &domain.Refund{
		ID:            m.ID,
		RefundID:      m.RefundID,
		PaymentID:     m.PaymentID,
		MerchantID:    m.MerchantID,
		AmountMinor:   m.AmountMinor,
		Currency:      m.Currency,
		Status:        domain.RefundStatus(m.Status),
		PSPRef:        m.PSPRef,
		Reason:        m.Reason,
		CorrelationID: m.CorrelationID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		CompletedAt:   m.CompletedAt,
	}
}

func toBatchModel(b *domain.SettlementBatch) *batchModel {
	return &batchModel{
		ID:             b.ID,
		BatchID:        b.BatchID,
		MerchantID:     b.MerchantID,
		Currency:       b.Currency,
		SettlementDate: b.SettlementDate,
		Status:         string(b.Status),
		GrossMinor:     b.GrossMinor,
		FeeMinor:       b.FeeMinor,
		NetMinor:       b.NetMinor,
		PaymentCount:   b.PaymentCount,
		AcquirerRef:    b.AcquirerRef,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		SubmittedAt:    b.SubmittedAt,
		SettledAt:      b.SettledAt,
	}
}

func toDomainBatch(m batchModel) *domain.SettlementBatch {
	return &domain.SettlementBatch{
		ID:             m.ID,
		BatchID:        m.BatchID,
		MerchantID:     m.MerchantID,
		Currency:       m.Currency,
		SettlementDate: m.SettlementDate,
		Status:         domain.SettlementBatchStatus(m.Status),
		GrossMinor:     m.GrossMinor,
		FeeMinor:       m.FeeMinor,
		NetMinor:       m.NetMinor,
		PaymentCount:   m.PaymentCount,
		AcquirerRef:    m.AcquirerRef,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		SubmittedAt:    m.SubmittedAt,
		SettledAt:      m.SettledAt,
	}
}

func toDomainAdjustment(m adjustmentModel) *domain.SettlementAdjustment {
	return &domain.SettlementAdjustment{
		ID:          m.ID,
		MerchantID:  m.MerchantID,
		Currency:    m.Currency,
		AmountMinor: m.AmountMinor,
		Reason:      m.Reason,
		DisputeID:   m.DisputeID,
		BatchID:     m.BatchID,
		CreatedAt:   m.CreatedAt,
		AppliedAt:   m.AppliedAt,
	}
}

func toDisputeModel(d *domain.Dispute) *disputeModel {
	return &disputeModel{
		ID:          d.ID,
		DisputeID:   d.DisputeID,
		PaymentID:   d.PaymentID,
		MerchantID:  d.MerchantID,
		AmountMinor: d.AmountMinor,
		Currency:    d.Currency,
		Status:      string(d.Status),
		ReasonCode:  d.ReasonCode,
		EvidenceDue: d.EvidenceDue,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ClosedAt:    d.ClosedAt,
	}
}

func toDomainDispute(m disputeModel) *domain.Dispute {
	return &domain.Dispute{
		ID:          m.ID,
		DisputeID:   m.DisputeID,
		PaymentID:   m.PaymentID,
		MerchantID:  m.MerchantID,
		AmountMinor: m.AmountMinor,
		Currency:    m.Currency,
		Status:      domain.DisputeStatus(m.Status),
		ReasonCode:  m.ReasonCode,
		EvidenceDue: m.EvidenceDue,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		ClosedAt:    m.ClosedAt,
	}
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb column: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return map[string]any{}, nil
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("unmarshal jsonb column: %w", err)
	}
	return v, nil
}
