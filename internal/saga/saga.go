// Package saga orchestrates multi-step payment flows and unwinds completed
// steps when a later one fails.
package saga

import (
	"context"
	"log/slog"
	"time"
)

// Step is one stage of a flow. Execute performs the stage; Compensate undoes
// it after a later stage fails. Action and Params describe the undo durably
// so a failed compensation can be persisted and replayed by the worker.
// A nil Compensate marks a stage with nothing to undo.
type Step struct {
	Name       string
	Action     string
	Params     map[string]any
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Failure is a compensation that kept failing after immediate retries.
type Failure struct {
	Step Step
	Err  error
}

// Result reports how a run ended. FailedStep is empty on success.
type Result struct {
	Executed            []string
	FailedStep          string
	StepErr             error
	Compensated         []string
	FailedCompensations []Failure
}

// Succeeded reports whether every step executed.
func (r Result) Succeeded() bool { return r.FailedStep == "" }

// Saga is an ordered sequence of steps for one payment attempt.
type Saga struct {
	paymentID     string
	correlationID string
	steps         []Step
	logger        *slog.Logger
}

// New creates an empty saga for one payment attempt.
func New(paymentID, correlationID string, logger *slog.Logger) *Saga {
	return &Saga{
		paymentID:     paymentID,
		correlationID: correlationID,
		logger:        logger,
	}
}

// AddStep appends a step to the flow.
func (s *Saga) AddStep(step Step) {
	s.steps = append(s.steps, step)
}

// Len returns the number of registered steps.
func (s *Saga) Len() int {
	return len(s.steps)
}

// Run executes the steps in order, stopping at the first failure and
// compensating every previously executed step in reverse order.
func (s *Saga) Run(ctx context.Context) Result {
	var result Result

	for _, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			s.logger.Warn("saga step failed",
				"step", step.Name,
				"payment_id", s.paymentID,
				"correlation_id", s.correlationID,
				"error", err)
			result.FailedStep = step.Name
			result.StepErr = err
			s.compensate(ctx, len(result.Executed), &result)
			return result
		}
		result.Executed = append(result.Executed, step.Name)
	}

	return result
}

const (
	compensateAttempts = 3
	compensateBackoff  = 200 * time.Millisecond
)

// compensate unwinds the first n steps in reverse order. Each compensation
// gets a few immediate retries; one that keeps failing is recorded and the
// remaining steps still run.
func (s *Saga) compensate(ctx context.Context, n int, result *Result) {
	for i := n - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}

		var err error
		for attempt := 1; attempt <= compensateAttempts; attempt++ {
			if err = step.Compensate(ctx); err == nil {
				break
			}
			s.logger.Warn("compensation failed",
				"step", step.Name,
				"payment_id", s.paymentID,
				"correlation_id", s.correlationID,
				"attempt", attempt,
				"error", err)

			if attempt == compensateAttempts || ctx.Err() != nil {
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(compensateBackoff << uint(attempt-1)):
			}
		}

		if err != nil {
			result.FailedCompensations = append(result.FailedCompensations, Failure{Step: step, Err: err})
			continue
		}

		result.Compensated = append(result.Compensated, step.Name)
		s.logger.Info("compensation completed",
			"step", step.Name,
			"payment_id", s.paymentID,
			"correlation_id", s.correlationID)
	}
}
