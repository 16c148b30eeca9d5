// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the gateway records. A single instance is
// created at startup and shared by services, workers and middleware.
type Metrics struct {
	Registry *prometheus.Registry

	AuthorizationsTotal *prometheus.CounterVec
	AuthorizeDuration   prometheus.Histogram

	PSPRequestsTotal  *prometheus.CounterVec
	PSPRequestSeconds *prometheus.HistogramVec
	PSPFailovers      *prometheus.CounterVec

	CircuitState *prometheus.GaugeVec

	RefundsTotal   *prometheus.CounterVec
	FraudScored    *prometheus.CounterVec
	FraudDegraded  prometheus.Counter
	ThreeDSTotal   *prometheus.CounterVec
	EventsProduced *prometheus.CounterVec
	EventsConsumed *prometheus.CounterVec
	OutboxPending  prometheus.Gauge

	RetriesScheduled   *prometheus.CounterVec
	DeadLetteredTotal  *prometheus.CounterVec
	CompensationsTotal *prometheus.CounterVec

	WebhookDeliveries *prometheus.CounterVec
	SettlementBatches *prometheus.CounterVec

	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		AuthorizationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_authorizations_total",
			Help: "Authorization outcomes by final status.",
		}, []string{"status"}),

		AuthorizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_authorize_duration_seconds",
			Help:    "End to end authorization pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),

		PSPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_psp_requests_total",
			Help: "PSP calls by provider, operation and outcome.",
		}, []string{"psp", "operation", "outcome"}),

		PSPRequestSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_psp_request_seconds",
			Help:    "PSP call latency by provider and operation.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"psp", "operation"}),

		PSPFailovers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_psp_failovers_total",
			Help: "Failovers from one PSP to the next by originating provider.",
		}, []string{"from"}),

		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_state",
			Help: "Circuit breaker state per PSP (0 closed, 1 half-open, 2 open).",
		}, []string{"psp"}),

		RefundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_refunds_total",
			Help: "Refund outcomes by status.",
		}, []string{"status"}),

		FraudScored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_fraud_scored_total",
			Help: "Fraud evaluations by action taken.",
		}, []string{"action"}),

		FraudDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_fraud_degraded_total",
			Help: "Authorizations scored in rule-only degraded mode.",
		}),

		ThreeDSTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_threeds_total",
			Help: "3-D Secure challenges by outcome.",
		}, []string{"outcome"}),

		EventsProduced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_produced_total",
			Help: "Events published to the bus by type.",
		}, []string{"event_type"}),

		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_consumed_total",
			Help: "Events consumed from the bus by type and result.",
		}, []string{"event_type", "result"}),

		OutboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_outbox_pending",
			Help: "Events buffered in the outbox awaiting publish.",
		}),

		RetriesScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_retries_scheduled_total",
			Help: "Retries scheduled by operation.",
		}, []string{"operation"}),

		DeadLetteredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_dead_lettered_total",
			Help: "Operations moved to the dead letter queue after retry exhaustion.",
		}, []string{"operation"}),

		CompensationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_compensations_total",
			Help: "Saga compensation runs by outcome.",
		}, []string{"outcome"}),

		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),

		SettlementBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_settlement_batches_total",
			Help: "Settlement batches by final status.",
		}, []string{"status"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
