package domain

import (
	"strings"
	"time"
)

// CardBrand identifies the card network inferred from the PAN prefix.
type CardBrand string

const (
	BrandVisa       CardBrand = "VISA"
	BrandMastercard CardBrand = "MASTERCARD"
	BrandAmex       CardBrand = "AMEX"
	BrandUnknown    CardBrand = "UNKNOWN"
)

// Card carries the raw card data supplied on an authorization request.
// Instances are short-lived: the PAN is exchanged for a token before any
// persistence or logging happens, and the CVV is dropped after validation.
type Card struct {
	PAN         string
	CVV         string
	ExpiryMonth int
	ExpiryYear  int
	Holder      string
}

// ValidPAN reports whether the PAN is 13 to 19 digits and passes the Luhn
// check.
func (c Card) ValidPAN() bool {
	n := len(c.PAN)
	if n < 13 || n > 19 {
		return false
	}
	sum := 0
	double := false
	for i := n - 1; i >= 0; i-- {
		ch := c.PAN[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidCVV reports whether the CVV is 3 or 4 digits.
func (c Card) ValidCVV() bool {
	if len(c.CVV) != 3 && len(c.CVV) != 4 {
		return false
	}
	for i := 0; i < len(c.CVV); i++ {
		if c.CVV[i] < '0' || c.CVV[i] > '9' {
			return false
		}
	}
	return true
}

// Expired reports whether the card expiry lies before the given instant.
// A card expires at the end of its expiry month.
func (c Card) Expired(now time.Time) bool {
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		return true
	}
	// First instant of the month after expiry.
	boundary := time.Date(c.ExpiryYear, time.Month(c.ExpiryMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return !now.Before(boundary)
}

// Brand infers the card network from the PAN prefix.
func (c Card) Brand() CardBrand {
	switch {
	case strings.HasPrefix(c.PAN, "4"):
		return BrandVisa
	case len(c.PAN) >= 2 && c.PAN[0] == '5' && c.PAN[1] >= '1' && c.PAN[1] <= '5':
		return BrandMastercard
	case strings.HasPrefix(c.PAN, "34") || strings.HasPrefix(c.PAN, "37"):
		return BrandAmex
	default:
		return BrandUnknown
	}
}

// LastFour returns the trailing four digits of the PAN.
func (c Card) LastFour() string {
	if len(c.PAN) < 4 {
		return c.PAN
	}
	return c.PAN[len(c.PAN)-4:]
}

// MaskPAN replaces every digit of a PAN except the last four with '*'. It is
// the only sanctioned rendering of a PAN outside the tokenization boundary.
func MaskPAN(pan string) string {
	if len(pan) <= 4 {
		return strings.Repeat("*", len(pan))
	}
	return strings.Repeat("*", len(pan)-4) + pan[len(pan)-4:]
}
