// Package handlers mounts the merchant-facing API. Every handler decodes,
// delegates to a service and writes the rendered result; no business logic
// lives here.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/meridianpay/gateway/internal/application/services"
)

// IdempotencyKeyHeader carries the caller-chosen key on mutating requests.
// The header is optional; requests without it get no replay protection.
const IdempotencyKeyHeader = "Idempotency-Key"

type Handlers struct {
	authorize *services.AuthorizeService
	capture   *services.CaptureService
	void      *services.VoidService
	refund    *services.RefundService
	query     *services.QueryService
	logger    *slog.Logger
}

func NewHandlers(
	authorize *services.AuthorizeService,
	capture *services.CaptureService,
	void *services.VoidService,
	refund *services.RefundService,
	query *services.QueryService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		authorize: authorize,
		capture:   capture,
		void:      void,
		refund:    refund,
		query:     query,
		logger:    logger,
	}
}

// Register mounts the merchant routes. Every route passes through the authed
// chain, which sets the merchant on the request context.
func (h *Handlers) Register(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /payments", authed(http.HandlerFunc(h.AuthorizePayment)))
	mux.Handle("GET /payments/{id}", authed(http.HandlerFunc(h.GetPayment)))
	mux.Handle("POST /payments/{id}/capture", authed(http.HandlerFunc(h.CapturePayment)))
	mux.Handle("POST /payments/{id}/void", authed(http.HandlerFunc(h.VoidPayment)))
	mux.Handle("POST /refunds", authed(http.HandlerFunc(h.CreateRefund)))
	mux.Handle("GET /refunds/{id}", authed(http.HandlerFunc(h.GetRefund)))
	mux.Handle("GET /transactions", authed(http.HandlerFunc(h.ListTransactions)))
}
