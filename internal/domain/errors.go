package domain

import "fmt"

// DeclineCode is the gateway's normalized decline taxonomy. PSP-specific
// response codes are mapped onto these before anything is persisted or
// returned to a merchant.
type DeclineCode string

const (
	DeclineInsufficientFunds    DeclineCode = "INSUFFICIENT_FUNDS"
	DeclineCardExpired          DeclineCode = "CARD_EXPIRED"
	DeclineInvalidCard          DeclineCode = "INVALID_CARD"
	DeclineDoNotHonor           DeclineCode = "DO_NOT_HONOR"
	DeclineSuspectedFraud       DeclineCode = "SUSPECTED_FRAUD"
	DeclineFraudBlock           DeclineCode = "FRAUD_BLOCK"
	DeclineAuthenticationFailed DeclineCode = "AUTHENTICATION_FAILED"
	DeclineVelocityExceeded     DeclineCode = "VELOCITY_EXCEEDED"
	DeclineGeneric              DeclineCode = "DECLINED"
)

// DomainError is a business rule violation raised by the domain layer.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes raised by the domain layer.
const (
	ErrCodeInvalidTransition        = "INVALID_TRANSITION"
	ErrCodeInvalidAmount            = "INVALID_AMOUNT"
	ErrCodeUnsupportedCurrency      = "UNSUPPORTED_CURRENCY"
	ErrCodeRefundExceedsAmount      = "REFUND_EXCEEDS_AMOUNT"
	ErrCodeInvalidRefundState       = "INVALID_REFUND_STATE"
	ErrCodeInvalidBatchTransition   = "INVALID_BATCH_TRANSITION"
	ErrCodeInvalidDisputeTransition = "INVALID_DISPUTE_TRANSITION"
	ErrCodeInvalidCard              = "INVALID_CARD"
	ErrCodeCardExpired              = "CARD_EXPIRED"
)

func NewInvalidTransitionError(from, to PaymentStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition payment from %s to %s", from, to),
	}
}

func NewInvalidAmountError(amountMinor int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("amount must be a positive number of minor units, got %d", amountMinor),
	}
}

func NewUnsupportedCurrencyError(currency string) *DomainError {
	return &DomainError{
		Code:    ErrCodeUnsupportedCurrency,
		Message: fmt.Sprintf("currency %q is not a supported ISO 4217 code", currency),
	}
}

func NewRefundExceedsAmountError(requestedMinor, capturedMinor int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeRefundExceedsAmount,
		Message: fmt.Sprintf("cumulative refunds of %d would exceed captured amount %d", requestedMinor, capturedMinor),
	}
}

func NewInvalidRefundStateError(status RefundStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidRefundState,
		Message: fmt.Sprintf("refund in status %s cannot be resolved", status),
	}
}

func NewInvalidBatchTransitionError(from, to SettlementBatchStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidBatchTransition,
		Message: fmt.Sprintf("cannot transition settlement batch from %s to %s", from, to),
	}
}

func NewInvalidDisputeTransitionError(from, to DisputeStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidDisputeTransition,
		Message: fmt.Sprintf("cannot transition dispute from %s to %s", from, to),
	}
}

func NewInvalidCardError(reason string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidCard,
		Message: reason,
	}
}

func NewCardExpiredError() *DomainError {
	return &DomainError{
		Code:    ErrCodeCardExpired,
		Message: "card expiry date is in the past",
	}
}
