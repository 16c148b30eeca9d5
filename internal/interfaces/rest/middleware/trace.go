package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianpay/gateway/internal/tracing"
)

// HeaderTraceID is the response header carrying the gateway-minted trace ID.
const HeaderTraceID = "X-Trace-ID"

// Trace stamps every request with a correlation ID and a trace ID. The
// correlation ID is taken from the caller's header when present so a merchant
// can tie a payment to their own systems; the trace ID is always minted here.
func Trace() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(tracing.HeaderCorrelationID)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			traceID := uuid.NewString()

			ctx := tracing.WithCorrelationID(r.Context(), correlationID)
			ctx = tracing.WithTraceID(ctx, traceID)

			w.Header().Set(tracing.HeaderCorrelationID, correlationID)
			w.Header().Set(HeaderTraceID, traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
