package domain

import "time"

// Merchant is an onboarded API consumer. Credentials are issued out of band;
// the gateway only verifies them.
type Merchant struct {
	MerchantID string
	Name       string

	// APIKeyHash is the SHA-256 hex digest of the merchant's API key. The
	// plaintext key is never stored.
	APIKeyHash string

	// WebhookURL is where lifecycle notifications are delivered. Empty
	// disables webhooks for the merchant.
	WebhookURL string

	// WebhookSecret signs webhook payloads (HMAC-SHA256).
	WebhookSecret string

	// RateLimitPerMin caps authorize/refund requests per minute. Zero means
	// the platform default applies.
	RateLimitPerMin int

	Active    bool
	CreatedAt time.Time
}
