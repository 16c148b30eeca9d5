// Package psp routes payment operations across payment service providers
// with circuit breaking and failover.
package psp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/meridianpay/gateway/internal/domain"
)

// ThreeDSEvidence is the authentication proof forwarded to the provider when
// a payment went through 3-D Secure.
type ThreeDSEvidence struct {
	CAVV string
	ECI  string
	XID  string
}

// AuthRequest asks a provider to place an authorization hold. Only the card
// token travels here; providers exchange it for the PAN inside their own
// vault integration.
type AuthRequest struct {
	PaymentID     string
	MerchantID    string
	AmountMinor   int64
	Currency      string
	CardToken     string
	ThreeDS       *ThreeDSEvidence
	CorrelationID string
}

// AuthResult is a definitive provider answer. A decline is a successful call
// with Approved false; it never triggers failover.
type AuthResult struct {
	Provider    string
	Approved    bool
	AuthRef     string
	DeclineCode domain.DeclineCode
	RawCode     string
}

type CaptureRequest struct {
	PaymentID     string
	AuthRef       string
	AmountMinor   int64
	Currency      string
	CorrelationID string
}

type CaptureResult struct {
	Provider   string
	CaptureRef string
}

type VoidRequest struct {
	PaymentID     string
	AuthRef       string
	CorrelationID string
}

type VoidResult struct {
	Provider string
	VoidRef  string
}

type RefundRequest struct {
	PaymentID     string
	RefundID      string
	CaptureRef    string
	AmountMinor   int64
	Currency      string
	CorrelationID string
}

type RefundResult struct {
	Provider  string
	RefundRef string
}

// Validate rejects structurally incomplete authorization requests before any
// provider is contacted.
func (r AuthRequest) Validate() error {
	switch {
	case r.PaymentID == "":
		return fmt.Errorf("%w: payment_id", ErrMissingRequiredField)
	case r.MerchantID == "":
		return fmt.Errorf("%w: merchant_id", ErrMissingRequiredField)
	case r.AmountMinor <= 0:
		return fmt.Errorf("%w: amount_minor", ErrMissingRequiredField)
	case len(r.Currency) != 3:
		return fmt.Errorf("%w: currency", ErrMissingRequiredField)
	case r.CardToken == "":
		return fmt.Errorf("%w: card_token", ErrMissingRequiredField)
	}
	return nil
}

func (r CaptureRequest) Validate() error {
	switch {
	case r.PaymentID == "":
		return fmt.Errorf("%w: payment_id", ErrMissingRequiredField)
	case r.AuthRef == "":
		return fmt.Errorf("%w: auth_ref", ErrMissingRequiredField)
	case r.AmountMinor <= 0:
		return fmt.Errorf("%w: amount_minor", ErrMissingRequiredField)
	}
	return nil
}

func (r VoidRequest) Validate() error {
	switch {
	case r.PaymentID == "":
		return fmt.Errorf("%w: payment_id", ErrMissingRequiredField)
	case r.AuthRef == "":
		return fmt.Errorf("%w: auth_ref", ErrMissingRequiredField)
	}
	return nil
}

func (r RefundRequest) Validate() error {
	switch {
	case r.PaymentID == "":
		return fmt.Errorf("%w: payment_id", ErrMissingRequiredField)
	case r.RefundID == "":
		return fmt.Errorf("%w: refund_id", ErrMissingRequiredField)
	case r.CaptureRef == "":
		return fmt.Errorf("%w: capture_ref", ErrMissingRequiredField)
	case r.AmountMinor <= 0:
		return fmt.Errorf("%w: amount_minor", ErrMissingRequiredField)
	}
	return nil
}

// Provider is one PSP integration.
type Provider interface {
	Name() string
	Authorize(ctx context.Context, req AuthRequest) (AuthResult, error)
	Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
	Void(ctx context.Context, req VoidRequest) (VoidResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// ErrAllProvidersUnavailable means every configured PSP was skipped or
// failed with an infrastructure error.
var ErrAllProvidersUnavailable = errors.New("all payment providers unavailable")

// ErrUnknownProvider means an operation referenced a PSP the router does not
// know, usually a configuration change between authorize and capture.
var ErrUnknownProvider = errors.New("unknown payment provider")

// ErrMissingRequiredField means the caller assembled an incomplete request.
// This is a programmer error, never a provider decline, and is rejected
// before any provider is contacted.
var ErrMissingRequiredField = errors.New("psp request missing required field")

// ProviderError is a failed provider call. StatusCode is the HTTP status
// when one was received; zero means the call never completed.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("psp %s: status %d code=%s: %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("psp %s: %s: %v", e.Provider, e.Message, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth a retry or a failover.
// Timeouts, connection failures, 5xx and 429 responses are transient; any
// other definitive HTTP answer is not.
func (e *ProviderError) Transient() bool {
	if e.StatusCode >= 500 || e.StatusCode == 429 {
		return true
	}
	if e.StatusCode > 0 {
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	// Connection-level failures arrive as wrapped *net.OpError.
	var opErr *net.OpError
	return errors.As(e.Err, &opErr)
}

// IsTransient classifies any error from a provider call.
func IsTransient(err error) bool {
	var pspErr *ProviderError
	if errors.As(err, &pspErr) {
		return pspErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
