package application

import (
	"context"
	"errors"
	"net/http"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/psp"
	"github.com/meridianpay/gateway/internal/resilience"
)

// ErrorCategory groups failures by how the caller should react.
type ErrorCategory string

const (
	// CategoryClient: the request itself is wrong; retrying unchanged will
	// fail the same way.
	CategoryClient ErrorCategory = "CLIENT_ERROR"
	// CategoryAuth: missing or bad credentials.
	CategoryAuth ErrorCategory = "AUTH_ERROR"
	// CategoryBusinessRule: a well-formed request the ledger rules reject.
	CategoryBusinessRule ErrorCategory = "BUSINESS_RULE"
	// CategoryConflict: concurrent or repeated use of the same resource.
	CategoryConflict ErrorCategory = "CONFLICT"
	// CategoryTransient: infrastructure trouble; retrying later may work.
	CategoryTransient ErrorCategory = "TRANSIENT"
	// CategoryInternal: a bug or unclassified failure.
	CategoryInternal ErrorCategory = "INTERNAL"
)

// CategorizeError places any error from the service layer into the taxonomy.
func CategorizeError(err error) ErrorCategory {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		switch svcErr.Code {
		case ErrCodeValidation:
			return CategoryClient
		case ErrCodeUnauthenticated:
			return CategoryAuth
		case ErrCodeRateLimited, ErrCodeRequestInFlight:
			return CategoryTransient
		case ErrCodeIdempotencyConflict, ErrCodeInvalidState:
			return CategoryConflict
		case ErrCodePaymentNotFound, ErrCodeRefundNotFound, ErrCodeDisputeNotFound:
			return CategoryClient
		case ErrCodeProvidersDown:
			return CategoryTransient
		default:
			return CategoryInternal
		}
	}

	var domErr *domain.DomainError
	if errors.As(err, &domErr) {
		switch domErr.Code {
		case domain.ErrCodeInvalidTransition,
			domain.ErrCodeInvalidBatchTransition,
			domain.ErrCodeInvalidDisputeTransition,
			domain.ErrCodeInvalidRefundState:
			return CategoryConflict
		default:
			// Amount, currency, card and refund-ledger violations.
			return CategoryBusinessRule
		}
	}

	switch {
	case errors.Is(err, psp.ErrAllProvidersUnavailable),
		errors.Is(err, resilience.ErrRetriesExhausted),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	case errors.Is(err, psp.ErrMissingRequiredField):
		return CategoryInternal
	}

	return CategoryInternal
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return CategorizeError(err) == CategoryTransient
}

// ToHTTPStatus maps an error to the response status the REST layer writes.
func ToHTTPStatus(err error) int {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		switch svcErr.Code {
		case ErrCodeValidation:
			return http.StatusBadRequest
		case ErrCodeUnauthenticated:
			return http.StatusUnauthorized
		case ErrCodeRateLimited, ErrCodeRequestInFlight:
			return http.StatusTooManyRequests
		case ErrCodeIdempotencyConflict, ErrCodeInvalidState:
			return http.StatusConflict
		case ErrCodePaymentNotFound, ErrCodeRefundNotFound, ErrCodeDisputeNotFound:
			return http.StatusNotFound
		case ErrCodeProvidersDown:
			return http.StatusServiceUnavailable
		}
	}

	switch CategorizeError(err) {
	case CategoryClient:
		return http.StatusBadRequest
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryBusinessRule:
		return http.StatusUnprocessableEntity
	case CategoryConflict:
		return http.StatusConflict
	case CategoryTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToErrorCode extracts the stable code surfaced in the response body.
func ToErrorCode(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	var domErr *domain.DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	if CategorizeError(err) == CategoryTransient {
		return ErrCodeProvidersDown
	}
	return ErrCodeInternal
}
