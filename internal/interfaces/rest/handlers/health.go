package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/meridianpay/gateway/internal/interfaces/rest"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Health reports dependency connectivity. Components are probed on every
// request with a short deadline; a single unhealthy component fails the
// whole endpoint so orchestrators stop routing traffic here.
type Health struct {
	checks map[string]HealthCheck
}

func NewHealth(checks map[string]HealthCheck) *Health {
	return &Health{checks: checks}
}

func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (h *Health) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Components: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Components[name] = "unhealthy: " + err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}
	rest.WriteJSON(w, status, resp)
}
