package services

import (
	"encoding/json"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/idempotency"
)

// Result is a fully rendered service outcome. The body is marshalled exactly
// once and stored byte for byte in the idempotency record, so a replayed
// request returns the identical bytes the first one did.
type Result struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// PaymentResponse is the wire shape of a payment. Card data appears only as
// the masked last four digits.
type PaymentResponse struct {
	PaymentID     string     `json:"payment_id"`
	Status        string     `json:"status"`
	AmountMinor   int64      `json:"amount_minor"`
	Currency      string     `json:"currency"`
	Card          string     `json:"card,omitempty"`
	CardBrand     string     `json:"card_brand,omitempty"`
	DeclineReason string     `json:"decline_reason,omitempty"`
	RefundedMinor int64      `json:"refunded_minor"`
	CorrelationID string     `json:"correlation_id"`
	TraceID       string     `json:"trace_id"`
	CreatedAt     time.Time  `json:"created_at"`
	AuthorizedAt  *time.Time `json:"authorized_at,omitempty"`
	CapturedAt    *time.Time `json:"captured_at,omitempty"`
}

// RefundResponse is the wire shape of a refund.
type RefundResponse struct {
	RefundID      string     `json:"refund_id"`
	PaymentID     string     `json:"payment_id"`
	Status        string     `json:"status"`
	AmountMinor   int64      `json:"amount_minor"`
	Currency      string     `json:"currency"`
	Reason        string     `json:"reason,omitempty"`
	CorrelationID string     `json:"correlation_id"`
	TraceID       string     `json:"trace_id"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TransactionPage is one page of the transaction listing.
type TransactionPage struct {
	Items   []PaymentResponse `json:"items"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	TraceID string            `json:"trace_id"`
}

func newPaymentResponse(p *domain.Payment, traceID string) PaymentResponse {
	resp := PaymentResponse{
		PaymentID:     p.PaymentID,
		Status:        string(p.Status),
		AmountMinor:   p.AmountMinor,
		Currency:      p.Currency,
		RefundedMinor: p.RefundedMinor,
		CorrelationID: p.CorrelationID,
		TraceID:       traceID,
		CreatedAt:     p.CreatedAt,
		AuthorizedAt:  p.AuthorizedAt,
		CapturedAt:    p.CapturedAt,
	}
	if p.CardLastFour != "" {
		resp.Card = "****" + p.CardLastFour
		resp.CardBrand = string(p.CardBrand)
	}
	if p.DeclineReason != nil {
		resp.DeclineReason = string(*p.DeclineReason)
	}
	return resp
}

func newRefundResponse(r *domain.Refund, traceID string) RefundResponse {
	return RefundResponse{
		RefundID:      r.RefundID,
		PaymentID:     r.PaymentID,
		Status:        string(r.Status),
		AmountMinor:   r.AmountMinor,
		Currency:      r.Currency,
		Reason:        r.Reason,
		CorrelationID: r.CorrelationID,
		TraceID:       traceID,
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
	}
}

// render marshals a response body exactly once.
func render(statusCode int, v any) (Result, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Result{}, application.NewInternalError(err)
	}
	return Result{StatusCode: statusCode, Body: body}, nil
}

// replay rebuilds a Result from a stored idempotency record, byte for byte.
func replay(rec *idempotency.Record) Result {
	return Result{StatusCode: rec.StatusCode, Body: rec.Body, Replayed: true}
}
