package handlers

import (
	"net/http"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/application/services"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
	"github.com/meridianpay/gateway/internal/tracing"
)

type cardRequest struct {
	Number      string `json:"number"`
	CVV         string `json:"cvv"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	Holder      string `json:"holder,omitempty"`
}

type authorizeRequest struct {
	AmountMinor int64       `json:"amount_minor"`
	Currency    string      `json:"currency"`
	Card        cardRequest `json:"card"`
}

func (h *Handlers) AuthorizePayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := tracing.MerchantID(r.Context())
	if !ok {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), h.logger)
		return
	}

	var req authorizeRequest
	if err := rest.DecodeJSON(w, r, &req); err != nil {
		rest.WriteBadRequest(w, r, "malformed request body")
		return
	}

	res, err := h.authorize.Authorize(r.Context(), services.AuthorizeCommand{
		MerchantID:     merchantID,
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		CardNumber:     req.Card.Number,
		CVV:            req.Card.CVV,
		ExpiryMonth:    req.Card.ExpiryMonth,
		ExpiryYear:     req.Card.ExpiryYear,
		CardHolder:     req.Card.Holder,
		SourceIP:       rest.ClientIP(r),
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		rest.WriteError(w, r, err, h.logger)
		return
	}
	rest.WriteResult(w, res)
}
