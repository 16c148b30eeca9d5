package providers

import "github.com/meridianpay/gateway/internal/domain"

type threeDSEvidence struct {
	CAVV string `json:"cavv"`
	ECI  string `json:"eci"`
	XID  string `json:"xid,omitempty"`
}

type authRequest struct {
	PaymentID   string           `json:"payment_id"`
	MerchantID  string           `json:"merchant_id"`
	AmountMinor int64            `json:"amount_minor"`
	Currency    string           `json:"currency"`
	CardToken   string           `json:"card_token"`
	ThreeDS     *threeDSEvidence `json:"three_ds,omitempty"`
}

type authResponse struct {
	Approved    bool   `json:"approved"`
	AuthRef     string `json:"auth_ref,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
}

type captureRequest struct {
	PaymentID   string `json:"payment_id"`
	AuthRef     string `json:"auth_ref"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type captureResponse struct {
	CaptureRef string `json:"capture_ref"`
}

type voidRequest struct {
	PaymentID string `json:"payment_id"`
	AuthRef   string `json:"auth_ref"`
}

type voidResponse struct {
	VoidRef string `json:"void_ref"`
}

type refundRequest struct {
	PaymentID   string `json:"payment_id"`
	RefundID    string `json:"refund_id"`
	CaptureRef  string `json:"capture_ref"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type refundResponse struct {
	RefundRef string `json:"refund_ref"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// normalizeDecline folds provider-specific decline codes into the gateway
// taxonomy. Unknown codes collapse to the generic decline; the raw code is
// kept alongside for audit.
func normalizeDecline(raw string) domain.DeclineCode {
	switch raw {
	case "insufficient_funds", "51", "NSF":
		return domain.DeclineInsufficientFunds
	case "expired_card", "54":
		return domain.DeclineCardExpired
	case "invalid_card", "14", "invalid_account":
		return domain.DeclineInvalidCard
	case "do_not_honor", "05":
		return domain.DeclineDoNotHonor
	case "suspected_fraud", "59", "fraud":
		return domain.DeclineSuspectedFraud
	case "authentication_failed", "3ds_failed":
		return domain.DeclineAuthenticationFailed
	default:
		return domain.DeclineGeneric
	}
}
