// Package fraud scores payments. The scoring service owns the model; this
// package owns the threshold policy and a rule-only fallback that keeps
// authorizations flowing when the service is down.
package fraud

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianpay/gateway/internal/application"
)

// Thresholds cut a score into decision bands and force step-up
// authentication above ThreeDS.
type Thresholds struct {
	Review  float64
	Block   float64
	ThreeDS float64
}

// Apply normalizes a result against the thresholds. The bands are
// authoritative: whatever decision a scoring service claims, a score at or
// above Block is a block, and a score at or above ThreeDS requires
// authentication.
func (t Thresholds) Apply(result application.FraudResult) application.FraudResult {
	switch {
	case result.Score >= t.Block:
		result.Decision = application.FraudBlock
	case result.Score >= t.Review:
		result.Decision = application.FraudReview
	default:
		if result.Decision != application.FraudBlock && result.Decision != application.FraudReview {
			result.Decision = application.FraudClean
		}
	}
	if result.Score >= t.ThreeDS {
		result.RequireThreeDS = true
	}
	return result
}

// Rule score weights. They are additive and capped at 1.0.
const (
	scoreBlocklist      = 1.0
	scoreVelocityHard   = 0.8
	scoreVelocitySoft   = 0.4
	scoreHighAmount     = 0.3
	highAmountThreshold = 500_000 // minor units
)

// Rules is the degraded-mode scorer: a static blocklist, a sliding window
// velocity counter and an amount heuristic. It needs no network beyond the
// counter store and never returns an error.
type Rules struct {
	blocklist      map[string]struct{}
	counters       application.Counter
	velocityLimit  int64
	velocityWindow time.Duration
	thresholds     Thresholds
	logger         *slog.Logger
}

func NewRules(blocklist []string, counters application.Counter, velocityLimit int, velocityWindow time.Duration, thresholds Thresholds, logger *slog.Logger) *Rules {
	set := make(map[string]struct{}, len(blocklist))
	for _, ip := range blocklist {
		set[ip] = struct{}{}
	}
	return &Rules{
		blocklist:      set,
		counters:       counters,
		velocityLimit:  int64(velocityLimit),
		velocityWindow: velocityWindow,
		thresholds:     thresholds,
		logger:         logger,
	}
}

// Blocklisted reports whether the source address is banned outright.
func (r *Rules) Blocklisted(sourceIP string) bool {
	_, ok := r.blocklist[sourceIP]
	return ok
}

// Thresholds exposes the policy so callers can normalize remote scores with
// the same bands.
func (r *Rules) Thresholds() Thresholds {
	return r.thresholds
}

// Score evaluates the payment with local rules only. Results carry the
// Degraded flag so the payment records that no model score was available.
func (r *Rules) Score(ctx context.Context, in application.FraudInput) application.FraudResult {
	var score float64
	var triggered []string

	if r.Blocklisted(in.SourceIP) {
		score += scoreBlocklist
		triggered = append(triggered, "ip_blocklist")
	}

	if count := r.velocity(ctx, in); r.velocityLimit > 0 && count > r.velocityLimit {
		if count > 2*r.velocityLimit {
			score += scoreVelocityHard
			triggered = append(triggered, "card_velocity_hard")
		} else {
			score += scoreVelocitySoft
			triggered = append(triggered, "card_velocity")
		}
	}

	if in.AmountMinor >= highAmountThreshold {
		score += scoreHighAmount
		triggered = append(triggered, "high_amount")
	}

	if score > 1.0 {
		score = 1.0
	}

	return r.thresholds.Apply(application.FraudResult{
		Score:          score,
		TriggeredRules: triggered,
		Degraded:       true,
	})
}

// velocity counts recent attempts on the card token. A counter outage keeps
// the rule silent rather than failing the evaluation.
func (r *Rules) velocity(ctx context.Context, in application.FraudInput) int64 {
	if r.counters == nil || in.CardToken == "" {
		return 0
	}
	count, err := r.counters.Incr(ctx, "fraud:velocity:"+in.CardToken, r.velocityWindow)
	if err != nil {
		r.logger.Warn("velocity counter unavailable", "payment_id", in.PaymentID, "error", err)
		return 0
	}
	return count
}

// VelocityTriggered reports whether velocity was the dominant signal behind
// a block, which maps to its own decline reason. A blocklist hit always
// outranks velocity.
func VelocityTriggered(result application.FraudResult) bool {
	velocity := false
	for _, rule := range result.TriggeredRules {
		switch rule {
		case "ip_blocklist":
			return false
		case "card_velocity", "card_velocity_hard":
			velocity = true
		}
	}
	return velocity
}
