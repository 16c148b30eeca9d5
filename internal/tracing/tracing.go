// Package tracing propagates correlation identifiers through contexts so a
// payment can be followed across the pipeline, workers and the event bus.
package tracing

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	traceIDKey
	merchantIDKey
)

// HeaderCorrelationID is the HTTP header correlation IDs travel in. Callers
// may supply their own; the gateway echoes it back on every response.
const HeaderCorrelationID = "X-Correlation-ID"

// WithCorrelationID returns a context carrying the given correlation ID.
// An empty id gets a fresh UUID so downstream code never sees a blank one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID extracts the correlation ID from the context, minting one if
// the context carries none.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// WithTraceID returns a context carrying the given trace ID. Unlike the
// correlation ID, which a caller may supply, the trace ID is always minted by
// the gateway at the request boundary.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID extracts the trace ID from the context, minting one if the context
// carries none.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// WithMerchantID returns a context carrying the authenticated merchant.
func WithMerchantID(ctx context.Context, merchantID string) context.Context {
	return context.WithValue(ctx, merchantIDKey, merchantID)
}

// MerchantID extracts the authenticated merchant from the context.
func MerchantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(merchantIDKey).(string)
	return id, ok && id != ""
}
