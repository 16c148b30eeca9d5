package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianpay/gateway/internal/settlement"
)

// SettlementWorker drives the settlement engine: one cut-off per day at the
// configured UTC hour, plus continuous submission of pending batches and
// reconciliation of processing ones.
type SettlementWorker struct {
	engine        *settlement.Engine
	cutoffHourUTC int
	interval      time.Duration
	logger        *slog.Logger

	lastCutoffDay string
}

func NewSettlementWorker(
	engine *settlement.Engine,
	cutoffHourUTC int,
	interval time.Duration,
	logger *slog.Logger,
) *SettlementWorker {
	return &SettlementWorker{
		engine:        engine,
		cutoffHourUTC: cutoffHourUTC,
		interval:      interval,
		logger:        logger,
	}
}

func (w *SettlementWorker) Start(ctx context.Context) {
	w.logger.Info("settlement worker started",
		"interval", w.interval,
		"cutoff_hour_utc", w.cutoffHourUTC)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settlement worker stopping")
			return
		case <-ticker.C:
			w.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick runs one scheduling pass against the given clock reading: the daily
// cut-off when due, then submission and reconciliation.
func (w *SettlementWorker) Tick(ctx context.Context, now time.Time) {
	if w.cutoffDue(now) {
		cutoff := time.Date(now.Year(), now.Month(), now.Day(), w.cutoffHourUTC, 0, 0, 0, time.UTC)
		batches, err := w.engine.CutOff(ctx, cutoff)
		if err != nil {
			w.logger.Error("settlement cut-off failed", "error", err)
		} else {
			w.lastCutoffDay = now.Format("2006-01-02")
			if len(batches) > 0 {
				w.logger.Info("settlement cut-off completed", "batches", len(batches))
			}
		}
	}

	if err := w.engine.SubmitPending(ctx); err != nil {
		w.logger.Error("pending batch submission failed", "error", err)
	}
	if err := w.engine.ReconcileProcessing(ctx); err != nil {
		w.logger.Error("batch reconciliation failed", "error", err)
	}
}

// cutoffDue reports whether today's cut-off hour has passed without a cut-off
// run. A failed run retries on the next tick; a completed one waits for
// tomorrow.
func (w *SettlementWorker) cutoffDue(now time.Time) bool {
	return now.Hour() >= w.cutoffHourUTC && w.lastCutoffDay != now.Format("2006-01-02")
}
