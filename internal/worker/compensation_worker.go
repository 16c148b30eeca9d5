package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/audit"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/psp"
	"github.com/meridianpay/gateway/internal/resilience"
)

const compensationBatchSize = 50

// CompensationWorker drains queued undo actions, currently PSP authorization
// voids left behind by failed pipelines. Transient failures reschedule with
// backoff; contract failures and exhausted budgets dead-letter the task for
// manual reconciliation.
type CompensationWorker struct {
	comps       application.CompensationRepository
	deadLetters application.DeadLetterRepository
	router      application.PaymentRouter
	audit       *audit.Log
	policy      resilience.RetryPolicy
	interval    time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewCompensationWorker(
	comps application.CompensationRepository,
	deadLetters application.DeadLetterRepository,
	router application.PaymentRouter,
	auditLog *audit.Log,
	policy resilience.RetryPolicy,
	interval time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CompensationWorker {
	return &CompensationWorker{
		comps:       comps,
		deadLetters: deadLetters,
		router:      router,
		audit:       auditLog,
		policy:      policy,
		interval:    interval,
		metrics:     m,
		logger:      logger,
	}
}

func (w *CompensationWorker) Start(ctx context.Context) {
	w.logger.Info("compensation worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("compensation worker stopping")
			return
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.Error("compensation drain failed", "error", err)
			}
		}
	}
}

// Drain runs one pass over the due tasks.
func (w *CompensationWorker) Drain(ctx context.Context) error {
	due, err := w.comps.Due(ctx, time.Now().UTC(), compensationBatchSize)
	if err != nil {
		return err
	}

	for _, task := range due {
		if err := w.run(ctx, task); err != nil {
			w.logger.Error("compensation task failed",
				"task_id", task.ID,
				"payment_id", task.PaymentID,
				"action", task.Action,
				"error", err)
		}
	}
	return nil
}

func (w *CompensationWorker) run(ctx context.Context, task *domain.CompensationTask) error {
	err := w.execute(ctx, task)
	if err == nil {
		task.Complete()
		if uerr := w.comps.Update(ctx, task); uerr != nil {
			return fmt.Errorf("mark task completed: %w", uerr)
		}
		w.metrics.CompensationsTotal.WithLabelValues("completed").Inc()
		w.audit.RecordWorker(ctx, domain.AuditCompensationRun, task.PaymentID, "", map[string]any{
			"action":   task.Action,
			"attempts": task.Attempts + 1,
		})
		return nil
	}

	exhausted := task.Attempts+1 >= w.policy.MaxAttempts
	if exhausted || !psp.IsTransient(err) {
		task.Abandon(err.Error())
		if uerr := w.comps.Update(ctx, task); uerr != nil {
			return fmt.Errorf("abandon task: %w", uerr)
		}
		w.deadLetter(ctx, task, err)
		w.metrics.CompensationsTotal.WithLabelValues("abandoned").Inc()
		return nil
	}

	task.Reschedule(time.Now().UTC().Add(w.policy.Delay(task.Attempts+1)), err.Error())
	if uerr := w.comps.Update(ctx, task); uerr != nil {
		return fmt.Errorf("reschedule task: %w", uerr)
	}
	w.metrics.RetriesScheduled.WithLabelValues(task.Action).Inc()
	w.logger.Warn("compensation rescheduled",
		"task_id", task.ID,
		"payment_id", task.PaymentID,
		"attempt", task.Attempts,
		"next_attempt_at", task.NextAttemptAt,
		"error", err)
	return nil
}

func (w *CompensationWorker) execute(ctx context.Context, task *domain.CompensationTask) error {
	switch task.Action {
	case domain.CompensationVoidAuth:
		provider, _ := task.Params["provider"].(string)
		authRef, _ := task.Params["auth_ref"].(string)
		if provider == "" || authRef == "" {
			return fmt.Errorf("task %d missing provider or auth_ref", task.ID)
		}
		_, err := w.router.Void(ctx, provider, psp.VoidRequest{
			PaymentID: task.PaymentID,
			AuthRef:   authRef,
		})
		return err
	default:
		return fmt.Errorf("unknown compensation action %q", task.Action)
	}
}

func (w *CompensationWorker) deadLetter(ctx context.Context, task *domain.CompensationTask, cause error) {
	entry := &domain.DeadLetter{
		Operation:    task.Action,
		PaymentID:    task.PaymentID,
		Payload:      task.Params,
		FailureChain: fmt.Sprintf("compensation abandoned after %d attempts: %v", task.Attempts, cause),
	}
	if err := w.deadLetters.Add(ctx, entry); err != nil {
		w.logger.Error("dead letter write failed",
			"task_id", task.ID,
			"payment_id", task.PaymentID,
			"error", err)
		return
	}
	w.metrics.DeadLetteredTotal.WithLabelValues(task.Action).Inc()
}
