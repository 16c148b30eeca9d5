// Package domain defines the core types of the acquiring gateway.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the current state of a payment in its lifecycle.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusAuthorized PaymentStatus = "AUTHORIZED"
	StatusCaptured   PaymentStatus = "CAPTURED"
	StatusSettled    PaymentStatus = "SETTLED"
	StatusDeclined   PaymentStatus = "DECLINED"
	StatusCancelled  PaymentStatus = "CANCELLED"
	StatusFailed     PaymentStatus = "FAILED"
	StatusRefunded   PaymentStatus = "REFUNDED"
)

// Payment is the durable record of one authorization attempt.
//
// ID is the internal key; PaymentID is the opaque client-facing identifier.
// Card fields only ever hold the token and masked data; the PAN and CVV
// never reach this type.
type Payment struct {
	ID        uuid.UUID
	PaymentID string

	MerchantID  string
	AmountMinor int64
	Currency    string
	Status      PaymentStatus

	CardToken    string
	CardLastFour string
	CardBrand    CardBrand

	PSPName       *string
	PSPAuthRef    *string
	PSPCaptureRef *string
	PSPVoidRef    *string

	FraudScore     *float64
	FraudDegraded  bool
	ThreeDSOutcome *string
	DeclineReason  *DeclineCode

	// RefundedMinor is the sum of COMPLETED refunds, maintained under the
	// same row lock as the refund insert.
	RefundedMinor int64

	CorrelationID string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	AuthorizedAt *time.Time
	CapturedAt   *time.Time
	SettledAt    *time.Time
}

// NewPayment creates a PENDING payment for the given merchant and amount.
func NewPayment(merchantID string, amountMinor int64, currency string, correlationID string) (*Payment, error) {
	if amountMinor <= 0 {
		return nil, NewInvalidAmountError(amountMinor)
	}
	currency = strings.ToUpper(currency)
	if len(currency) != 3 {
		return nil, NewUnsupportedCurrencyError(currency)
	}

	id := uuid.New()
	now := time.Now().UTC()
	return &Payment{
		ID:            id,
		PaymentID:     "pay_" + strings.ReplaceAll(id.String(), "-", ""),
		MerchantID:    merchantID,
		AmountMinor:   amountMinor,
		Currency:      currency,
		Status:        StatusPending,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanTransitionTo validates whether the payment may move from its current
// status to the target status. It returns nil if the transition is allowed.
//
// Valid transitions are:
//   - Pending → Authorized, Declined, Failed
//   - Authorized → Captured, Cancelled, Failed
//   - Captured → Settled, Refunded
//   - Settled → Refunded
//
// Declined, Cancelled, Failed and Refunded accept no further transitions.
func (p *Payment) CanTransitionTo(target PaymentStatus) error {
	switch p.Status {
	case StatusDeclined, StatusCancelled, StatusFailed, StatusRefunded:
		return NewInvalidTransitionError(p.Status, target)

	case StatusPending:
		if target == StatusAuthorized || target == StatusDeclined || target == StatusFailed {
			return nil
		}

	case StatusAuthorized:
		if target == StatusCaptured || target == StatusCancelled || target == StatusFailed {
			return nil
		}

	case StatusCaptured:
		if target == StatusSettled || target == StatusRefunded {
			return nil
		}

	case StatusSettled:
		if target == StatusRefunded {
			return nil
		}
	}
	return NewInvalidTransitionError(p.Status, target)
}

// IsTerminal reports whether the payment accepts no further status change.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case StatusDeclined, StatusCancelled, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

// MonetaryLocked reports whether the monetary fields are immutable. A payment
// locks its amounts the moment it reaches CAPTURED or any terminal state.
func (p *Payment) MonetaryLocked() bool {
	switch p.Status {
	case StatusCaptured, StatusSettled, StatusDeclined, StatusCancelled, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

// Authorize records a successful PSP authorization.
func (p *Payment) Authorize(pspName, authRef string, at time.Time) error {
	if err := p.CanTransitionTo(StatusAuthorized); err != nil {
		return err
	}
	p.Status = StatusAuthorized
	p.PSPName = &pspName
	p.PSPAuthRef = &authRef
	p.AuthorizedAt = &at
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Decline moves the payment to DECLINED with a normalized reason.
func (p *Payment) Decline(reason DeclineCode) error {
	if err := p.CanTransitionTo(StatusDeclined); err != nil {
		return err
	}
	p.Status = StatusDeclined
	p.DeclineReason = &reason
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail marks the payment FAILED after recovery options were exhausted.
func (p *Payment) Fail() error {
	if err := p.CanTransitionTo(StatusFailed); err != nil {
		return err
	}
	p.Status = StatusFailed
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Capture converts the authorization hold into a charge.
func (p *Payment) Capture(captureRef string, at time.Time) error {
	if err := p.CanTransitionTo(StatusCaptured); err != nil {
		return err
	}
	p.Status = StatusCaptured
	p.PSPCaptureRef = &captureRef
	p.CapturedAt = &at
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Void cancels the authorization before capture.
func (p *Payment) Void(voidRef string) error {
	if err := p.CanTransitionTo(StatusCancelled); err != nil {
		return err
	}
	p.Status = StatusCancelled
	p.PSPVoidRef = &voidRef
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSettled records the settlement of a captured payment.
func (p *Payment) MarkSettled(at time.Time) error {
	if err := p.CanTransitionTo(StatusSettled); err != nil {
		return err
	}
	p.Status = StatusSettled
	p.SettledAt = &at
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyRefund accounts a completed refund against the payment. The payment
// becomes REFUNDED once the full amount has been returned; partial refunds
// leave the status untouched.
func (p *Payment) ApplyRefund(amountMinor int64) error {
	if p.Status != StatusCaptured && p.Status != StatusSettled {
		return NewInvalidTransitionError(p.Status, StatusRefunded)
	}
	if p.RefundedMinor+amountMinor > p.AmountMinor {
		return NewRefundExceedsAmountError(p.RefundedMinor+amountMinor, p.AmountMinor)
	}
	p.RefundedMinor += amountMinor
	if p.RefundedMinor == p.AmountMinor {
		p.Status = StatusRefunded
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// RefundableMinor returns the amount still open for refunding, counting
// PENDING refunds supplied by the caller.
func (p *Payment) RefundableMinor(pendingMinor int64) int64 {
	return p.AmountMinor - p.RefundedMinor - pendingMinor
}
