package psp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/resilience"
)

// Router tries providers in priority order for authorizations and pins
// follow-up operations to the provider that authorized. Each provider sits
// behind its own circuit breaker; an open breaker skips the provider the
// same way an infrastructure failure does.
type Router struct {
	order    []Provider
	byName   map[string]Provider
	breakers map[string]*resilience.Breaker
	retry    resilience.RetryPolicy
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewRouter builds a router over providers in failover priority order.
func NewRouter(providers []Provider, store resilience.CircuitStore, circuitCfg resilience.CircuitConfig, retry resilience.RetryPolicy, logger *slog.Logger, m *metrics.Metrics) *Router {
	r := &Router{
		order:    providers,
		byName:   make(map[string]Provider, len(providers)),
		breakers: make(map[string]*resilience.Breaker, len(providers)),
		retry:    retry,
		logger:   logger,
		metrics:  m,
	}
	for _, p := range providers {
		r.byName[p.Name()] = p
		breaker := resilience.NewBreaker(p.Name(), store, circuitCfg, logger)
		breaker.OnStateChange(func(name string, state resilience.CircuitState) {
			m.CircuitState.WithLabelValues(name).Set(state.GaugeValue())
		})
		r.breakers[p.Name()] = breaker
	}
	return r
}

// Providers returns the configured provider names in priority order.
func (r *Router) Providers() []string {
	names := make([]string, len(r.order))
	for i, p := range r.order {
		names[i] = p.Name()
	}
	return names
}

// Authorize walks the providers in priority order. A decline from any
// provider is final. Infrastructure failures and open circuits move on to
// the next provider; if none is left, ErrAllProvidersUnavailable comes back.
func (r *Router) Authorize(ctx context.Context, req AuthRequest) (AuthResult, error) {
	if err := req.Validate(); err != nil {
		return AuthResult{}, err
	}

	var lastErr error

	for i, provider := range r.order {
		name := provider.Name()
		breaker := r.breakers[name]

		if err := breaker.Allow(ctx); err != nil {
			r.logger.Warn("skipping provider with open circuit",
				"psp", name, "payment_id", req.PaymentID, "correlation_id", req.CorrelationID)
			r.metrics.PSPRequestsTotal.WithLabelValues(name, "authorize", "circuit_open").Inc()
			lastErr = fmt.Errorf("psp %s: %w", name, err)
			continue
		}

		result, err := call(ctx, r, name, "authorize", func(ctx context.Context) (AuthResult, error) {
			return provider.Authorize(ctx, req)
		})
		if err == nil {
			breaker.RecordSuccess(ctx)
			result.Provider = name
			outcome := "approved"
			if !result.Approved {
				outcome = "declined"
			}
			r.metrics.PSPRequestsTotal.WithLabelValues(name, "authorize", outcome).Inc()
			return result, nil
		}

		if !IsTransient(err) {
			// A definitive non-decline rejection (bad token, invalid
			// request) will not improve at another provider.
			r.metrics.PSPRequestsTotal.WithLabelValues(name, "authorize", "rejected").Inc()
			return AuthResult{}, err
		}

		breaker.RecordFailure(ctx)
		r.metrics.PSPRequestsTotal.WithLabelValues(name, "authorize", "unavailable").Inc()
		lastErr = err

		if i < len(r.order)-1 {
			r.metrics.PSPFailovers.WithLabelValues(name).Inc()
			r.logger.Warn("failing over to next provider",
				"psp", name, "payment_id", req.PaymentID, "correlation_id", req.CorrelationID, "error", err)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no providers configured")
	}
	return AuthResult{}, fmt.Errorf("%w: %w", ErrAllProvidersUnavailable, lastErr)
}

// Capture runs against the provider that holds the authorization.
func (r *Router) Capture(ctx context.Context, providerName string, req CaptureRequest) (CaptureResult, error) {
	if err := req.Validate(); err != nil {
		return CaptureResult{}, err
	}
	provider, breaker, err := r.lookup(providerName)
	if err != nil {
		return CaptureResult{}, err
	}
	if err := breaker.Allow(ctx); err != nil {
		r.metrics.PSPRequestsTotal.WithLabelValues(providerName, "capture", "circuit_open").Inc()
		return CaptureResult{}, fmt.Errorf("psp %s: %w", providerName, err)
	}

	result, err := call(ctx, r, providerName, "capture", func(ctx context.Context) (CaptureResult, error) {
		return provider.Capture(ctx, req)
	})
	r.record(ctx, breaker, providerName, "capture", err)
	if err != nil {
		return CaptureResult{}, err
	}
	result.Provider = providerName
	return result, nil
}

// Void cancels an authorization at the provider that holds it.
func (r *Router) Void(ctx context.Context, providerName string, req VoidRequest) (VoidResult, error) {
	if err := req.Validate(); err != nil {
		return VoidResult{}, err
	}
	provider, breaker, err := r.lookup(providerName)
	if err != nil {
		return VoidResult{}, err
	}
	if err := breaker.Allow(ctx); err != nil {
		r.metrics.PSPRequestsTotal.WithLabelValues(providerName, "void", "circuit_open").Inc()
		return VoidResult{}, fmt.Errorf("psp %s: %w", providerName, err)
	}

	result, err := call(ctx, r, providerName, "void", func(ctx context.Context) (VoidResult, error) {
		return provider.Void(ctx, req)
	})
	r.record(ctx, breaker, providerName, "void", err)
	if err != nil {
		return VoidResult{}, err
	}
	result.Provider = providerName
	return result, nil
}

// Refund returns captured funds through the provider that captured them.
func (r *Router) Refund(ctx context.Context, providerName string, req RefundRequest) (RefundResult, error) {
	if err := req.Validate(); err != nil {
		return RefundResult{}, err
	}
	provider, breaker, err := r.lookup(providerName)
	if err != nil {
		return RefundResult{}, err
	}
	if err := breaker.Allow(ctx); err != nil {
		r.metrics.PSPRequestsTotal.WithLabelValues(providerName, "refund", "circuit_open").Inc()
		return RefundResult{}, fmt.Errorf("psp %s: %w", providerName, err)
	}

	result, err := call(ctx, r, providerName, "refund", func(ctx context.Context) (RefundResult, error) {
		return provider.Refund(ctx, req)
	})
	r.record(ctx, breaker, providerName, "refund", err)
	if err != nil {
		return RefundResult{}, err
	}
	result.Provider = providerName
	return result, nil
}

func (r *Router) lookup(name string) (Provider, *resilience.Breaker, error) {
	provider, ok := r.byName[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return provider, r.breakers[name], nil
}

// call wraps one provider operation with the retry policy and latency
// metrics. Retries stay within the same provider; failover is the caller's
// decision.
func call[T any](ctx context.Context, r *Router, psp, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	started := time.Now()
	result, err := resilience.Retry(ctx, r.retry, IsTransient, op)
	r.metrics.PSPRequestSeconds.WithLabelValues(psp, operation).Observe(time.Since(started).Seconds())
	return result, err
}

func (r *Router) record(ctx context.Context, breaker *resilience.Breaker, psp, operation string, err error) {
	switch {
	case err == nil:
		breaker.RecordSuccess(ctx)
		r.metrics.PSPRequestsTotal.WithLabelValues(psp, operation, "ok").Inc()
	case IsTransient(err):
		breaker.RecordFailure(ctx)
		r.metrics.PSPRequestsTotal.WithLabelValues(psp, operation, "unavailable").Inc()
	default:
		breaker.RecordSuccess(ctx)
		r.metrics.PSPRequestsTotal.WithLabelValues(psp, operation, "rejected").Inc()
	}
}

// BreakerState exposes per-provider circuit state for health reporting.
func (r *Router) BreakerState(ctx context.Context, name string) (resilience.CircuitState, error) {
	breaker, ok := r.breakers[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return breaker.State(ctx), nil
}
