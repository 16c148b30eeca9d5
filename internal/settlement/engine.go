// Package settlement batches captured payments per merchant and currency,
// submits the batches to the acquirer and reconciles the acquirer's report
// against the gateway's own ledger.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/audit"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/tracing"
)

// Fees is the acquirer's pricing: a rate on gross volume in basis points plus
// a fixed charge per transaction.
type Fees struct {
	BasisPts   int64
	FixedMinor int64
}

// Apply computes the fee for a batch of count payments totalling grossMinor.
func (f Fees) Apply(grossMinor int64, count int) int64 {
	return grossMinor*f.BasisPts/10_000 + int64(count)*f.FixedMinor
}

const cutOffPageLimit = 1000

// Engine drives the settlement lifecycle: cut-off batching, acquirer
// submission, report reconciliation and chargeback handling.
type Engine struct {
	tx       application.TxRunner
	payments application.PaymentRepository
	batches  application.SettlementRepository
	disputes application.DisputeRepository
	outbox   application.OutboxRepository
	acquirer application.AcquirerClient
	bus      application.EventPublisher
	audit    *audit.Log
	fees     Fees
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEngine(
	tx application.TxRunner,
	payments application.PaymentRepository,
	batches application.SettlementRepository,
	disputes application.DisputeRepository,
	outbox application.OutboxRepository,
	acquirer application.AcquirerClient,
	bus application.EventPublisher,
	auditLog *audit.Log,
	fees Fees,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		tx:       tx,
		payments: payments,
		batches:  batches,
		disputes: disputes,
		outbox:   outbox,
		acquirer: acquirer,
		bus:      bus,
		audit:    auditLog,
		fees:     fees,
		metrics:  m,
		logger:   logger,
	}
}

type groupKey struct {
	merchantID string
	currency   string
}

// CutOff groups payments captured before the cut-off into one PENDING batch
// per merchant and currency. Adjustments waiting for the merchant, the
// negative lines lost disputes leave behind, are folded into the batch's net
// amount and stamped as applied.
func (e *Engine) CutOff(ctx context.Context, cutoff time.Time) ([]*domain.SettlementBatch, error) {
	captured, err := e.payments.CapturedForSettlement(ctx, cutoff, cutOffPageLimit)
	if err != nil {
		return nil, fmt.Errorf("select captured payments: %w", err)
	}
	if len(captured) == 0 {
		return nil, nil
	}

	groups := map[groupKey][]*domain.Payment{}
	for _, p := range captured {
		k := groupKey{merchantID: p.MerchantID, currency: p.Currency}
		groups[k] = append(groups[k], p)
	}
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].merchantID != keys[j].merchantID {
			return keys[i].merchantID < keys[j].merchantID
		}
		return keys[i].currency < keys[j].currency
	})

	settlementDate := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)

	var created []*domain.SettlementBatch
	for _, k := range keys {
		batch, err := e.openBatch(ctx, k, groups[k], settlementDate)
		if err != nil {
			return created, err
		}
		created = append(created, batch)
	}
	return created, nil
}

func (e *Engine) openBatch(ctx context.Context, k groupKey, members []*domain.Payment, settlementDate time.Time) (*domain.SettlementBatch, error) {
	batch := domain.NewSettlementBatch(k.merchantID, k.currency, settlementDate)

	ids := make([]string, 0, len(members))
	for _, p := range members {
		batch.GrossMinor += p.AmountMinor
		ids = append(ids, p.PaymentID)
	}
	batch.PaymentCount = len(members)
	batch.FeeMinor = e.fees.Apply(batch.GrossMinor, batch.PaymentCount)

	adjustments, err := e.batches.PendingAdjustments(ctx, k.merchantID, k.currency)
	if err != nil {
		return nil, fmt.Errorf("pending adjustments for %s/%s: %w", k.merchantID, k.currency, err)
	}
	var adjTotal int64
	adjIDs := make([]int64, 0, len(adjustments))
	for _, adj := range adjustments {
		adjTotal += adj.AmountMinor
		adjIDs = append(adjIDs, adj.ID)
	}
	batch.NetMinor = batch.GrossMinor - batch.FeeMinor + adjTotal

	txErr := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.batches.CreateBatch(ctx, batch); err != nil {
			return err
		}
		if err := e.batches.AssignPayments(ctx, batch.BatchID, ids); err != nil {
			return err
		}
		if len(adjIDs) > 0 {
			return e.batches.MarkAdjustmentsApplied(ctx, adjIDs, batch.BatchID)
		}
		return nil
	})
	if txErr != nil {
		return nil, fmt.Errorf("open batch for %s/%s: %w", k.merchantID, k.currency, txErr)
	}

	e.metrics.SettlementBatches.WithLabelValues(string(domain.BatchPending)).Inc()
	e.audit.RecordWorker(ctx, domain.AuditBatchCreated, "", batch.MerchantID, map[string]any{
		"batch_id":      batch.BatchID,
		"currency":      batch.Currency,
		"gross_minor":   batch.GrossMinor,
		"fee_minor":     batch.FeeMinor,
		"net_minor":     batch.NetMinor,
		"payment_count": batch.PaymentCount,
	})
	e.logger.Info("settlement batch opened",
		"batch_id", batch.BatchID,
		"merchant_id", batch.MerchantID,
		"currency", batch.Currency,
		"gross_minor", batch.GrossMinor,
		"payment_count", batch.PaymentCount)
	return batch, nil
}

// Submit hands one PENDING batch to the acquirer and records its reference.
func (e *Engine) Submit(ctx context.Context, batch *domain.SettlementBatch) error {
	members, err := e.batches.PaymentsInBatch(ctx, batch.BatchID)
	if err != nil {
		return fmt.Errorf("load batch %s payments: %w", batch.BatchID, err)
	}
	ids := make([]string, 0, len(members))
	for _, p := range members {
		ids = append(ids, p.PaymentID)
	}

	ref, err := e.acquirer.SubmitBatch(ctx, application.BatchSubmission{
		BatchID:        batch.BatchID,
		MerchantID:     batch.MerchantID,
		Currency:       batch.Currency,
		SettlementDate: batch.SettlementDate,
		GrossMinor:     batch.GrossMinor,
		NetMinor:       batch.NetMinor,
		PaymentCount:   batch.PaymentCount,
		PaymentIDs:     ids,
	})
	if err != nil {
		return fmt.Errorf("submit batch %s: %w", batch.BatchID, err)
	}

	if err := batch.Submit(ref, time.Now().UTC()); err != nil {
		return err
	}
	if err := e.batches.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("update batch %s: %w", batch.BatchID, err)
	}

	e.audit.RecordWorker(ctx, domain.AuditBatchSubmitted, "", batch.MerchantID, map[string]any{
		"batch_id":     batch.BatchID,
		"acquirer_ref": ref,
	})
	return nil
}

// Reconcile fetches the acquirer's report for a PROCESSING batch and compares
// it against the ledger. Agreement settles the batch and its payments; any
// disagreement parks the batch in AMOUNT_MISMATCH and raises an alert event.
// A report that is not ready yet leaves the batch untouched.
func (e *Engine) Reconcile(ctx context.Context, batch *domain.SettlementBatch) error {
	if batch.AcquirerRef == nil {
		return fmt.Errorf("batch %s has no acquirer reference", batch.BatchID)
	}
	report, err := e.acquirer.FetchReport(ctx, *batch.AcquirerRef)
	if err != nil {
		return fmt.Errorf("fetch report for batch %s: %w", batch.BatchID, err)
	}
	if report == nil || !report.Ready {
		return nil
	}

	members, err := e.batches.PaymentsInBatch(ctx, batch.BatchID)
	if err != nil {
		return fmt.Errorf("load batch %s payments: %w", batch.BatchID, err)
	}

	if reason := compare(batch, members, report); reason != "" {
		return e.flagMismatch(ctx, batch, reason)
	}
	return e.settle(ctx, batch, members)
}

// compare checks the batch header against the ledger rows and the acquirer's
// report. It returns an empty string when all three agree and a description
// of the first disagreement otherwise.
func compare(batch *domain.SettlementBatch, members []*domain.Payment, report *application.SettlementReport) string {
	byID := make(map[string]*domain.Payment, len(members))
	var ledger int64
	for _, p := range members {
		ledger += p.AmountMinor
		byID[p.PaymentID] = p
	}
	if ledger != batch.GrossMinor {
		return fmt.Sprintf("ledger sum %d disagrees with batch gross %d", ledger, batch.GrossMinor)
	}

	exponent := domain.CurrencyExponent(batch.Currency)

	total := report.TotalMajor.Shift(exponent)
	if !total.IsInteger() {
		return fmt.Sprintf("acquirer total %s is not a whole number of minor units", report.TotalMajor)
	}
	if total.IntPart() != batch.GrossMinor {
		return fmt.Sprintf("acquirer reported %d, batch gross is %d", total.IntPart(), batch.GrossMinor)
	}

	seen := make(map[string]struct{}, len(report.Lines))
	for _, line := range report.Lines {
		if _, dup := seen[line.PaymentID]; dup {
			return fmt.Sprintf("duplicate report line for payment %s", line.PaymentID)
		}
		seen[line.PaymentID] = struct{}{}

		p, ok := byID[line.PaymentID]
		if !ok {
			return fmt.Sprintf("report line for payment %s not in batch", line.PaymentID)
		}
		minor, ok := line.MinorUnits(exponent)
		if !ok {
			return fmt.Sprintf("payment %s reported as fractional amount %s", line.PaymentID, line.AmountMajor)
		}
		if minor != p.AmountMinor {
			return fmt.Sprintf("payment %s reported %d, ledger has %d", line.PaymentID, minor, p.AmountMinor)
		}
	}
	// Some acquirers report totals only; a line-level report must cover every
	// payment in the batch.
	if len(report.Lines) > 0 && len(seen) != len(members) {
		return fmt.Sprintf("report covers %d of %d payments", len(seen), len(members))
	}
	return ""
}

func (e *Engine) settle(ctx context.Context, batch *domain.SettlementBatch, members []*domain.Payment) error {
	now := time.Now().UTC()
	if err := batch.MarkSettled(now); err != nil {
		return err
	}

	correlationID := tracing.CorrelationID(ctx)
	traceID := tracing.TraceID(ctx)

	var (
		outboxIDs []int64
		evts      []domain.Event
	)
	txErr := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.batches.UpdateBatch(ctx, batch); err != nil {
			return err
		}
		for _, p := range members {
			if p.Status != domain.StatusCaptured {
				// Refunded in full between cut-off and reconciliation; the
				// money already moved through the refund path.
				continue
			}
			if err := p.MarkSettled(now); err != nil {
				return err
			}
			if err := e.payments.Update(ctx, p); err != nil {
				return err
			}
			evt := domain.NewEvent(domain.EventPaymentSettled, p.PaymentID, correlationID, traceID, domain.PaymentEventPayload(p))
			id, err := e.outbox.Enqueue(ctx, evt)
			if err != nil {
				return err
			}
			outboxIDs, evts = append(outboxIDs, id), append(evts, evt)
		}

		evt := domain.NewEvent(domain.EventSettlementSettled, batch.BatchID, correlationID, traceID, domain.BatchEventPayload(batch))
		id, err := e.outbox.Enqueue(ctx, evt)
		if err != nil {
			return err
		}
		outboxIDs, evts = append(outboxIDs, id), append(evts, evt)
		return nil
	})
	if txErr != nil {
		return fmt.Errorf("settle batch %s: %w", batch.BatchID, txErr)
	}

	e.flush(ctx, outboxIDs, evts)
	e.metrics.SettlementBatches.WithLabelValues(string(domain.BatchSettled)).Inc()
	e.audit.RecordWorker(ctx, domain.AuditBatchSettled, "", batch.MerchantID, map[string]any{
		"batch_id":    batch.BatchID,
		"gross_minor": batch.GrossMinor,
		"net_minor":   batch.NetMinor,
	})
	e.logger.Info("settlement batch settled",
		"batch_id", batch.BatchID,
		"merchant_id", batch.MerchantID,
		"gross_minor", batch.GrossMinor)
	return nil
}

func (e *Engine) flagMismatch(ctx context.Context, batch *domain.SettlementBatch, reason string) error {
	now := time.Now().UTC()
	if err := batch.MarkMismatch(now); err != nil {
		return err
	}

	payload := domain.BatchEventPayload(batch)
	payload["mismatch_reason"] = reason
	evt := domain.NewEvent(domain.EventSettlementMismatch, batch.BatchID, tracing.CorrelationID(ctx), tracing.TraceID(ctx), payload)

	var outboxID int64
	txErr := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.batches.UpdateBatch(ctx, batch); err != nil {
			return err
		}
		id, err := e.outbox.Enqueue(ctx, evt)
		outboxID = id
		return err
	})
	if txErr != nil {
		return fmt.Errorf("flag batch %s mismatch: %w", batch.BatchID, txErr)
	}

	e.flush(ctx, []int64{outboxID}, []domain.Event{evt})
	e.metrics.SettlementBatches.WithLabelValues(string(domain.BatchAmountMismatch)).Inc()
	e.audit.RecordWorker(ctx, domain.AuditBatchMismatch, "", batch.MerchantID, map[string]any{
		"batch_id": batch.BatchID,
		"reason":   reason,
	})
	e.logger.Error("settlement batch mismatch",
		"batch_id", batch.BatchID,
		"merchant_id", batch.MerchantID,
		"reason", reason)
	return nil
}

// flush pushes outbox-buffered events to the bus right away. Entries the bus
// does not acknowledge stay in the outbox for the worker to replay; consumers
// dedup by event id.
func (e *Engine) flush(ctx context.Context, outboxIDs []int64, evts []domain.Event) {
	for i, evt := range evts {
		if err := e.bus.Publish(ctx, evt); err != nil {
			e.logger.Warn("event publish deferred to outbox",
				"event_id", evt.EventID,
				"event_type", evt.EventType,
				"error", err)
			continue
		}
		if err := e.outbox.MarkPublished(ctx, outboxIDs[i]); err != nil {
			e.logger.Warn("outbox mark-published failed",
				"event_id", evt.EventID,
				"error", err)
		}
	}
}

// SubmitPending hands every PENDING batch to the acquirer. A batch that fails
// to submit is logged and retried on the next run; it never blocks the rest.
func (e *Engine) SubmitPending(ctx context.Context) error {
	batches, err := e.batches.ListBatchesByStatus(ctx, domain.BatchPending, cutOffPageLimit)
	if err != nil {
		return fmt.Errorf("list pending batches: %w", err)
	}
	for _, b := range batches {
		if err := e.Submit(ctx, b); err != nil {
			e.logger.Error("batch submission failed",
				"batch_id", b.BatchID,
				"error", err)
		}
	}
	return nil
}

// ReconcileProcessing polls the acquirer report for every PROCESSING batch.
func (e *Engine) ReconcileProcessing(ctx context.Context) error {
	batches, err := e.batches.ListBatchesByStatus(ctx, domain.BatchProcessing, cutOffPageLimit)
	if err != nil {
		return fmt.Errorf("list processing batches: %w", err)
	}
	for _, b := range batches {
		if err := e.Reconcile(ctx, b); err != nil {
			e.logger.Error("batch reconciliation failed",
				"batch_id", b.BatchID,
				"error", err)
		}
	}
	return nil
}
