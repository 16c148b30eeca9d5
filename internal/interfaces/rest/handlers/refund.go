package handlers

import (
	"net/http"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/application/services"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
	"github.com/meridianpay/gateway/internal/tracing"
)

type refundRequest struct {
	PaymentID   string `json:"payment_id"`
	AmountMinor int64  `json:"amount_minor"`
	Reason      string `json:"reason,omitempty"`
}

func (h *Handlers) CreateRefund(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := tracing.MerchantID(r.Context())
	if !ok {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), h.logger)
		return
	}

	var req refundRequest
	if err := rest.DecodeJSON(w, r, &req); err != nil {
		rest.WriteBadRequest(w, r, "malformed request body")
		return
	}

	res, err := h.refund.Refund(r.Context(), services.RefundCommand{
		PaymentID:      req.PaymentID,
		MerchantID:     merchantID,
		AmountMinor:    req.AmountMinor,
		Reason:         req.Reason,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		rest.WriteError(w, r, err, h.logger)
		return
	}
	rest.WriteResult(w, res)
}

func (h *Handlers) GetRefund(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := tracing.MerchantID(r.Context())
	if !ok {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), h.logger)
		return
	}

	refund, err := h.query.GetRefund(r.Context(), merchantID, r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, r, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, refund)
}
