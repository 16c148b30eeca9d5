package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
	"github.com/meridianpay/gateway/internal/tracing"
)

// RateLimit caps request rates per merchant with shared counters, so the cap
// holds across gateway instances. Merchants with a configured per-minute
// limit get that; everyone else shares the platform per-second default. A
// counter outage fails open: rate limiting protects capacity, it is not an
// auth control.
//
// Runs inside Auth, which put the merchant on the context.
func RateLimit(counters application.Counter, defaultRPS int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			merchantID, ok := tracing.MerchantID(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			limit, window := int64(defaultRPS), time.Second
			if merchant, ok := MerchantFrom(r.Context()); ok && merchant.RateLimitPerMin > 0 {
				limit, window = int64(merchant.RateLimitPerMin), time.Minute
			}

			key := fmt.Sprintf("ratelimit:%s:%ds", merchantID, int(window.Seconds()))
			count, err := counters.Incr(r.Context(), key, window)
			if err != nil {
				logger.Warn("rate limit counter unavailable, admitting request",
					"merchant_id", merchantID, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				rest.WriteError(w, r, application.NewRateLimitedError(), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
