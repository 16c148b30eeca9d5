package rest

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/meridianpay/gateway/internal/application/services"
)

// maxBodyBytes caps request bodies. Payment requests are small; anything
// bigger is abuse.
const maxBodyBytes = 1 << 20

// DecodeJSON reads a request body into dst. Unknown fields are tolerated so
// SDK upgrades do not break older gateways.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// WriteResult sends a pre-rendered service result. The body bytes are written
// as stored so idempotent replays are byte-identical to the first response.
func WriteResult(w http.ResponseWriter, res services.Result) {
	w.Header().Set("Content-Type", "application/json")
	if res.Replayed {
		w.Header().Set("Idempotency-Replay", "true")
	}
	w.WriteHeader(res.StatusCode)
	w.Write(res.Body)
}

// WriteJSON renders v at the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ClientIP extracts the originating address, trusting the first entry of
// X-Forwarded-For when a proxy set one.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
