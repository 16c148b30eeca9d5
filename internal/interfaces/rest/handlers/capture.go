package handlers

import (
	"net/http"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/application/services"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
	"github.com/meridianpay/gateway/internal/tracing"
)

func (h *Handlers) CapturePayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := tracing.MerchantID(r.Context())
	if !ok {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), h.logger)
		return
	}

	res, err := h.capture.Capture(r.Context(), services.CaptureCommand{
		PaymentID:      r.PathValue("id"),
		MerchantID:     merchantID,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		rest.WriteError(w, r, err, h.logger)
		return
	}
	rest.WriteResult(w, res)
}
