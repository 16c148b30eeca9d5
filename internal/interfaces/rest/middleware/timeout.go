package middleware

import (
	"context"
	"net/http"
	"time"
)

const timeoutBody = `{"code":"TIMEOUT","message":"request timed out"}`

// Timeout bounds every request. The deadline also lands on the request
// context so downstream collaborator calls inherit it.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			http.TimeoutHandler(next, timeout, timeoutBody).ServeHTTP(w, r)
		})
	}
}
