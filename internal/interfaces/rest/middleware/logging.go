package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/tracing"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging writes one structured line per request and feeds the HTTP
// collectors. Bodies are never logged; card data must not reach the logs
// even at debug level.
//
// The route label comes from r.Pattern, which the mux sets on the request in
// place, so this layer must wrap the mux directly with no request-copying
// handler (http.TimeoutHandler) between them.
func Logging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)

			m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"trace_id", tracing.TraceID(r.Context()),
				"correlation_id", tracing.CorrelationID(r.Context()),
			)
		})
	}
}
