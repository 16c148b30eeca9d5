// Package audit writes the gateway's append-only audit trail. Everything
// that reaches it is redacted first: a primary account number must never
// survive into a stored detail, whatever path it took to get there.
package audit

import (
	"fmt"
	"regexp"
	"strings"
)

// panPattern matches any 13-19 digit run, the full PAN length range. It is
// deliberately broad; redacting a harmless order number beats leaking a card.
var panPattern = regexp.MustCompile(`[0-9]{13,19}`)

// cvvKeys are detail keys whose values are dropped outright regardless of
// shape.
var cvvKeys = map[string]struct{}{
	"cvv":           {},
	"cvc":           {},
	"cvv2":          {},
	"security_code": {},
	"card_number":   {},
	"pan":           {},
}

// RedactString masks every PAN-length digit run, keeping the last four
// digits for support lookups.
func RedactString(s string) string {
	return panPattern.ReplaceAllStringFunc(s, func(match string) string {
		return strings.Repeat("*", len(match)-4) + match[len(match)-4:]
	})
}

// RedactDetails returns a deep copy of details safe to persist. Keys that
// name card secrets are replaced with "***"; every string value is scanned
// for PAN-length digit runs; nested maps and slices are walked.
func RedactDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if _, secret := cvvKeys[strings.ToLower(k)]; secret {
			out[k] = "***"
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return RedactString(val)
	case map[string]any:
		return RedactDetails(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	case fmt.Stringer:
		return RedactString(val.String())
	default:
		return v
	}
}
