package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RefundStatus is the state of a single refund request.
type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundCompleted RefundStatus = "COMPLETED"
	RefundFailed    RefundStatus = "FAILED"
)

// Refund is one partial or full return of captured funds.
type Refund struct {
	ID          uuid.UUID
	RefundID    string
	PaymentID   string
	MerchantID  string
	AmountMinor int64
	Currency    string
	Status      RefundStatus
	PSPRef      *string
	Reason      string

	CorrelationID string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewRefund creates a PENDING refund against a payment. Amount validation
// against the refundable balance happens in the service under the payment
// row lock, not here.
func NewRefund(payment *Payment, amountMinor int64, reason, correlationID string) (*Refund, error) {
	if amountMinor <= 0 {
		return nil, NewInvalidAmountError(amountMinor)
	}
	id := uuid.New()
	now := time.Now().UTC()
	return &Refund{
		ID:            id,
		RefundID:      "ref_" + strings.ReplaceAll(id.String(), "-", ""),
		PaymentID:     payment.PaymentID,
		MerchantID:    payment.MerchantID,
		AmountMinor:   amountMinor,
		Currency:      payment.Currency,
		Status:        RefundPending,
		Reason:        reason,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Complete records a successful refund at the PSP.
func (r *Refund) Complete(pspRef string, at time.Time) error {
	if r.Status != RefundPending {
		return NewInvalidRefundStateError(r.Status)
	}
	r.Status = RefundCompleted
	r.PSPRef = &pspRef
	r.CompletedAt = &at
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail marks the refund as rejected by the PSP. The reserved amount returns
// to the refundable balance.
func (r *Refund) Fail() error {
	if r.Status != RefundPending {
		return NewInvalidRefundStateError(r.Status)
	}
	r.Status = RefundFailed
	r.UpdatedAt = time.Now().UTC()
	return nil
}
