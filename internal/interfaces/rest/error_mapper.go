// Package rest adapts the service layer to HTTP. Handlers stay thin: decode,
// call a service, write the result.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/tracing"
)

// ErrorResponse is the wire shape of every failure. Code is stable across
// releases; trace_id lets support correlate a merchant report with logs.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	TraceID string            `json:"trace_id"`
}

// statusFor maps stable service error codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case application.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case application.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case application.ErrCodeForbidden:
		return http.StatusForbidden
	case application.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case application.ErrCodeIdempotencyConflict, application.ErrCodeRequestInFlight, application.ErrCodeInvalidState:
		return http.StatusConflict
	case application.ErrCodePaymentNotFound, application.ErrCodeRefundNotFound, application.ErrCodeDisputeNotFound:
		return http.StatusNotFound
	case application.ErrCodeProvidersDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// serviceErrorFor converts errors the service layer passes through verbatim,
// domain rule violations, into their transport shape. Anything unrecognized
// becomes the opaque internal error.
func serviceErrorFor(err error) *application.ServiceError {
	var domErr *domain.DomainError
	if !errors.As(err, &domErr) {
		return application.NewInternalError(err)
	}
	switch domErr.Code {
	case domain.ErrCodeInvalidAmount, domain.ErrCodeUnsupportedCurrency,
		domain.ErrCodeRefundExceedsAmount, domain.ErrCodeInvalidCard, domain.ErrCodeCardExpired:
		return application.NewValidationError(domErr.Message, nil)
	default:
		// Transition rejections: the resource exists but its current state
		// does not allow the operation.
		return application.NewInvalidStateError(domErr)
	}
}

// WriteError renders a service error. Unexpected error types are logged with
// their cause and surface as the opaque internal error.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var svcErr *application.ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = serviceErrorFor(err)
	}

	status := statusFor(svcErr.Code)
	if status >= 500 {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", svcErr.Code,
			"error", err)
	}
	if status == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "60")
	}

	resp := ErrorResponse{
		Code:    svcErr.Code,
		Message: svcErr.Message,
		Details: svcErr.Details,
		TraceID: tracing.TraceID(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteBadRequest rejects a request the router or decoder could not parse.
// Unlike validation failures this is a 400: the body never reached the
// service layer.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	resp := ErrorResponse{
		Code:    application.ErrCodeValidation,
		Message: message,
		TraceID: tracing.TraceID(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(resp)
}
