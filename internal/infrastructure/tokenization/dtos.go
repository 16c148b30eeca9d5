package tokenization

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type tokenizeRequest struct {
	PAN         string `json:"pan"`
	CVV         string `json:"cvv"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	Holder      string `json:"holder,omitempty"`
}

type tokenizeResponse struct {
	Token      string `json:"token"`
	LastFour   string `json:"last_four"`
	Brand      string `json:"brand"`
	KeyVersion int    `json:"key_version"`
}

type detokenizeRequest struct {
	Token string `json:"token"`
}

type detokenizeResponse struct {
	PAN         string `json:"pan"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	Holder      string `json:"holder,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VaultError is a failed vault call. StatusCode is zero when the call never
// completed.
type VaultError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *VaultError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("vault: status %d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("vault: %s: %v", e.Message, e.Err)
}

func (e *VaultError) Unwrap() error {
	return e.Err
}

// Transient reports whether the call is worth retrying.
func (e *VaultError) Transient() bool {
	if e.StatusCode >= 500 || e.StatusCode == 429 {
		return true
	}
	if e.StatusCode > 0 {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
