package services

import (
	"context"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/tracing"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PaymentDetail is the read view of a payment, refund history included.
type PaymentDetail struct {
	PaymentResponse
	Refunds []RefundResponse `json:"refunds"`
}

// QueryService serves the read side: single payments, single refunds and the
// paginated transaction listing. Lookups are always scoped to the caller's
// merchant.
type QueryService struct {
	payments application.PaymentRepository
	refunds  application.RefundRepository
}

func NewQueryService(payments application.PaymentRepository, refunds application.RefundRepository) *QueryService {
	return &QueryService{payments: payments, refunds: refunds}
}

func (s *QueryService) GetPayment(ctx context.Context, merchantID, paymentID string) (PaymentDetail, error) {
	p, err := s.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return PaymentDetail{}, application.NewInternalError(err)
	}
	if p == nil || p.MerchantID != merchantID {
		return PaymentDetail{}, application.NewPaymentNotFoundError(paymentID)
	}

	refunds, err := s.refunds.ListByPaymentID(ctx, p.PaymentID)
	if err != nil {
		return PaymentDetail{}, application.NewInternalError(err)
	}

	traceID := tracing.TraceID(ctx)
	detail := PaymentDetail{
		PaymentResponse: newPaymentResponse(p, traceID),
		Refunds:         make([]RefundResponse, 0, len(refunds)),
	}
	for _, r := range refunds {
		detail.Refunds = append(detail.Refunds, newRefundResponse(r, traceID))
	}
	return detail, nil
}

func (s *QueryService) GetRefund(ctx context.Context, merchantID, refundID string) (RefundResponse, error) {
	r, err := s.refunds.FindByRefundID(ctx, refundID)
	if err != nil {
		return RefundResponse{}, application.NewInternalError(err)
	}
	if r == nil || r.MerchantID != merchantID {
		return RefundResponse{}, application.NewRefundNotFoundError(refundID)
	}
	return newRefundResponse(r, tracing.TraceID(ctx)), nil
}

// ListTransactions pages through a merchant's payments, newest first. The
// merchant scope comes from the authenticated caller, never the query string.
func (s *QueryService) ListTransactions(ctx context.Context, filter application.TransactionFilter) (TransactionPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return TransactionPage{}, application.NewInternalError(err)
	}

	traceID := tracing.TraceID(ctx)
	page := TransactionPage{
		Items:   make([]PaymentResponse, 0, len(payments)),
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		TraceID: traceID,
	}
	for _, p := range payments {
		page.Items = append(page.Items, newPaymentResponse(p, traceID))
	}
	return page, nil
}
