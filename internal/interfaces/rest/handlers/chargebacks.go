package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
	"github.com/meridianpay/gateway/internal/settlement"
)

// Chargebacks is the acquirer-facing intake for dispute notifications. It
// lives outside the merchant API: the acquirer authenticates with a shared
// bearer token, not merchant credentials.
type Chargebacks struct {
	engine *settlement.Engine
	token  string
	logger *slog.Logger
}

func NewChargebacks(engine *settlement.Engine, token string, logger *slog.Logger) *Chargebacks {
	return &Chargebacks{engine: engine, token: token, logger: logger}
}

// Register mounts the acquirer notification routes.
func (c *Chargebacks) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /acquirer/chargebacks", c.Open)
	mux.HandleFunc("POST /acquirer/chargebacks/{id}/evidence", c.AcknowledgeEvidence)
	mux.HandleFunc("POST /acquirer/chargebacks/{id}/outcome", c.Close)
}

func (c *Chargebacks) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || c.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.token)) == 1
}

type openChargebackRequest struct {
	PaymentID   string `json:"payment_id"`
	AmountMinor int64  `json:"amount_minor"`
	ReasonCode  string `json:"reason_code"`
	EvidenceDue string `json:"evidence_due"`
}

type disputeResponse struct {
	DisputeID   string     `json:"dispute_id"`
	PaymentID   string     `json:"payment_id"`
	AmountMinor int64      `json:"amount_minor"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	ReasonCode  string     `json:"reason_code"`
	EvidenceDue *time.Time `json:"evidence_due,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func newDisputeResponse(d *domain.Dispute) disputeResponse {
	return disputeResponse{
		DisputeID:   d.DisputeID,
		PaymentID:   d.PaymentID,
		AmountMinor: d.AmountMinor,
		Currency:    d.Currency,
		Status:      string(d.Status),
		ReasonCode:  d.ReasonCode,
		EvidenceDue: d.EvidenceDue,
		ClosedAt:    d.ClosedAt,
	}
}

func (c *Chargebacks) Open(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), c.logger)
		return
	}

	var req openChargebackRequest
	if err := rest.DecodeJSON(w, r, &req); err != nil {
		rest.WriteBadRequest(w, r, "malformed request body")
		return
	}
	evidenceDue, err := time.Parse(time.RFC3339, req.EvidenceDue)
	if err != nil {
		rest.WriteBadRequest(w, r, "evidence_due must be an RFC 3339 timestamp")
		return
	}

	dispute, err := c.engine.OpenDispute(r.Context(), req.PaymentID, req.AmountMinor, req.ReasonCode, evidenceDue)
	if err != nil {
		rest.WriteError(w, r, err, c.logger)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, newDisputeResponse(dispute))
}

// AcknowledgeEvidence records that the merchant's representment reached the
// acquirer, moving the case to PENDING_EVIDENCE.
func (c *Chargebacks) AcknowledgeEvidence(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), c.logger)
		return
	}

	dispute, err := c.engine.SubmitEvidence(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, r, err, c.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, newDisputeResponse(dispute))
}

type closeChargebackRequest struct {
	Outcome string `json:"outcome"`
}

func (c *Chargebacks) Close(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		rest.WriteError(w, r, application.NewUnauthenticatedError(), c.logger)
		return
	}

	var req closeChargebackRequest
	if err := rest.DecodeJSON(w, r, &req); err != nil {
		rest.WriteBadRequest(w, r, "malformed request body")
		return
	}
	outcome := domain.DisputeStatus(strings.ToUpper(req.Outcome))
	if outcome != domain.DisputeWon && outcome != domain.DisputeLost {
		rest.WriteBadRequest(w, r, "outcome must be WON or LOST")
		return
	}

	dispute, err := c.engine.CloseDispute(r.Context(), r.PathValue("id"), outcome)
	if err != nil {
		rest.WriteError(w, r, err, c.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, newDisputeResponse(dispute))
}
