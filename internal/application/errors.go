package application

import "fmt"

// ServiceError is the failure type the service layer returns to transports.
// Code is stable across releases and safe to show a merchant; Err carries
// the internal cause for logs only.
type ServiceError struct {
	Code    string
	Message string
	Details map[string]string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Stable service error codes.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ErrCodeRequestInFlight     = "REQUEST_IN_FLIGHT"
	ErrCodePaymentNotFound     = "PAYMENT_NOT_FOUND"
	ErrCodeRefundNotFound      = "REFUND_NOT_FOUND"
	ErrCodeDisputeNotFound     = "DISPUTE_NOT_FOUND"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeProvidersDown       = "PROVIDERS_UNAVAILABLE"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError rejects a request before it has side effects. Details
// maps field names to what is wrong with them.
func NewValidationError(message string, details map[string]string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NewUnauthenticatedError rejects a request with missing or bad credentials.
func NewUnauthenticatedError() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeUnauthenticated,
		Message: "missing or invalid credentials",
	}
}

// NewForbiddenError rejects valid credentials that do not grant the
// requested access, e.g. a deactivated merchant.
func NewForbiddenError() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeForbidden,
		Message: "credentials do not grant access to this resource",
	}
}

// NewRateLimitedError tells the merchant to slow down.
func NewRateLimitedError() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeRateLimited,
		Message: "request rate limit exceeded, retry later",
	}
}

// NewIdempotencyConflictError signals a reused key with a different request
// body. The caller's bug; nothing was executed.
func NewIdempotencyConflictError() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeIdempotencyConflict,
		Message: "idempotency key was already used with a different request",
	}
}

// NewRequestInFlightError signals that the first request with this key is
// still executing. Safe to retry shortly.
func NewRequestInFlightError() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeRequestInFlight,
		Message: "a request with this idempotency key is still being processed",
	}
}

// NewPaymentNotFoundError covers both a genuinely unknown payment and one
// that belongs to another merchant; the wire response never tells the two
// apart.
func NewPaymentNotFoundError(paymentID string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodePaymentNotFound,
		Message: fmt.Sprintf("payment %s not found", paymentID),
	}
}

func NewRefundNotFoundError(refundID string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeRefundNotFound,
		Message: fmt.Sprintf("refund %s not found", refundID),
	}
}

func NewDisputeNotFoundError(disputeID string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeDisputeNotFound,
		Message: fmt.Sprintf("dispute %s not found", disputeID),
	}
}

// NewInvalidStateError wraps a domain transition rejection, e.g. capturing a
// payment that is not authorized.
func NewInvalidStateError(err error) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeInvalidState,
		Message: "operation is not valid for the payment's current state",
		Err:     err,
	}
}

// NewProvidersDownError is returned when every PSP was exhausted. The
// payment row, if one was created, is FAILED.
func NewProvidersDownError(err error) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeProvidersDown,
		Message: "payment providers are temporarily unavailable",
		Err:     err,
	}
}

// NewInternalError hides an unexpected failure behind a stable code.
func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeInternal,
		Message: "an internal error occurred",
		Err:     err,
	}
}
