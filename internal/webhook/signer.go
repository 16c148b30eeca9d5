// Package webhook delivers lifecycle notifications to merchant endpoints.
// Payloads are signed with the merchant's secret so endpoints can verify
// origin and integrity.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// SignatureHeader carries the payload signature on every delivery.
const SignatureHeader = "X-Webhook-Signature"

// Sign computes the signature value for a payload: HMAC-SHA256 over
// "<unix-timestamp>.<payload bytes>", rendered as "t=<ts>,v1=<hex>". The
// timestamp lets endpoints reject stale replays; the payload bytes are signed
// exactly as posted, never re-marshalled.
func Sign(secret string, payload []byte, unixTS int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", unixTS)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", unixTS, hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a received signature against the payload. Merchants get this
// same logic in their SDKs; the gateway uses it in tests and for documenting
// the scheme.
func Verify(secret string, payload []byte, header string) bool {
	var ts int64
	var v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return false
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return false
			}
			ts = parsed
		case "v1":
			v1 = v
		}
	}
	if ts == 0 || v1 == "" {
		return false
	}
	want := Sign(secret, payload, ts)
	return hmac.Equal([]byte(want), []byte(fmt.Sprintf("t=%d,v1=%s", ts, v1)))
}
