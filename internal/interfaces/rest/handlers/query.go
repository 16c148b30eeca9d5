package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
	"github.com/meridianpay/gateway/internal/tracing"
)

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := tracing.MerchantID(r.Context())
	if !ok {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), h.logger)
		return
	}

	detail, err := h.query.GetPayment(r.Context(), merchantID, r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, r, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, detail)
}

// ListTransactions pages the merchant's payments. Filters: status, currency,
// from, to (RFC 3339), limit, offset.
func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := tracing.MerchantID(r.Context())
	if !ok {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), h.logger)
		return
	}

	q := r.URL.Query()
	filter := application.TransactionFilter{
		MerchantID: merchantID,
		Status:     domain.PaymentStatus(q.Get("status")),
		Currency:   q.Get("currency"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rest.WriteBadRequest(w, r, "from must be an RFC 3339 timestamp")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rest.WriteBadRequest(w, r, "to must be an RFC 3339 timestamp")
			return
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rest.WriteBadRequest(w, r, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rest.WriteBadRequest(w, r, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	page, err := h.query.ListTransactions(r.Context(), filter)
	if err != nil {
		rest.WriteError(w, r, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, page)
}
