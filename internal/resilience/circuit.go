package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the breaker state machine position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// ErrCircuitOpen is returned by Allow while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitRecord is the shared breaker state. Version supports optimistic
// concurrency: two gateway instances racing an update resolve through
// compare-and-swap, so a state change happens exactly once.
type CircuitRecord struct {
	State          CircuitState `json:"state"`
	Failures       int          `json:"failures"`
	WindowStart    time.Time    `json:"window_start"`
	OpenedAt       time.Time    `json:"opened_at"`
	ProbesIssued   int          `json:"probes_issued"`
	ProbeSuccesses int          `json:"probe_successes"`
	Version        int64        `json:"version"`
}

// CircuitStore persists breaker records shared across gateway instances.
type CircuitStore interface {
	// Get returns the current record for the breaker, or a zero-version
	// CLOSED record if none exists yet.
	Get(ctx context.Context, name string) (CircuitRecord, error)
	// CompareAndSwap writes next only if the stored version still equals
	// next.Version-1. It reports whether the swap took effect.
	CompareAndSwap(ctx context.Context, name string, next CircuitRecord) (bool, error)
}

// CircuitConfig shapes one breaker's behaviour.
type CircuitConfig struct {
	FailureThreshold int
	Window           time.Duration
	OpenTimeout      time.Duration
	HalfOpenProbes   int
}

// Breaker is a circuit breaker for one named dependency. All instances of
// the gateway observing the same store share its state.
type Breaker struct {
	name   string
	store  CircuitStore
	cfg    CircuitConfig
	logger *slog.Logger
	now    func() time.Time

	// onStateChange, when set, observes transitions for metrics.
	onStateChange func(name string, state CircuitState)
}

// NewBreaker creates a breaker backed by the given store.
func NewBreaker(name string, store CircuitStore, cfg CircuitConfig, logger *slog.Logger) *Breaker {
	return &Breaker{
		name:   name,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// OnStateChange registers a transition observer.
func (b *Breaker) OnStateChange(fn func(name string, state CircuitState)) {
	b.onStateChange = fn
}

// Name returns the dependency this breaker guards.
func (b *Breaker) Name() string { return b.name }

const casAttempts = 5

// Allow decides whether a call may proceed. In OPEN it returns
// ErrCircuitOpen until the open timeout elapses, then admits a bounded
// number of half-open probes. Store errors fail open so a broken store never
// blocks traffic by itself.
func (b *Breaker) Allow(ctx context.Context) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, err := b.store.Get(ctx, b.name)
		if err != nil {
			b.logger.Warn("circuit store read failed, allowing call", "circuit", b.name, "error", err)
			return nil
		}

		switch rec.State {
		case CircuitClosed:
			return nil

		case CircuitOpen:
			if b.now().Sub(rec.OpenedAt) < b.cfg.OpenTimeout {
				return ErrCircuitOpen
			}
			// Timeout elapsed: move to HALF_OPEN and take the first probe.
			next := rec
			next.State = CircuitHalfOpen
			next.ProbesIssued = 1
			next.ProbeSuccesses = 0
			next.Version = rec.Version + 1
			ok, err := b.store.CompareAndSwap(ctx, b.name, next)
			if err != nil {
				b.logger.Warn("circuit store write failed, allowing call", "circuit", b.name, "error", err)
				return nil
			}
			if ok {
				b.transitioned(CircuitHalfOpen)
				return nil
			}
			// Lost the race, re-read.

		case CircuitHalfOpen:
			if rec.ProbesIssued >= b.cfg.HalfOpenProbes {
				return ErrCircuitOpen
			}
			next := rec
			next.ProbesIssued++
			next.Version = rec.Version + 1
			ok, err := b.store.CompareAndSwap(ctx, b.name, next)
			if err != nil {
				b.logger.Warn("circuit store write failed, allowing call", "circuit", b.name, "error", err)
				return nil
			}
			if ok {
				return nil
			}

		default:
			return nil
		}
	}
	return ErrCircuitOpen
}

// RecordSuccess feeds a successful call back into the breaker.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.update(ctx, func(rec CircuitRecord) (CircuitRecord, bool) {
		switch rec.State {
		case CircuitHalfOpen:
			rec.ProbeSuccesses++
			if rec.ProbeSuccesses >= b.cfg.HalfOpenProbes {
				rec = CircuitRecord{State: CircuitClosed, Version: rec.Version}
				return rec, true
			}
			return rec, false

		case CircuitClosed:
			if rec.Failures > 0 {
				rec.Failures = 0
				rec.WindowStart = time.Time{}
				return rec, false
			}
			return rec, false

		default:
			return rec, false
		}
	})
}

// RecordFailure feeds a failed call back into the breaker. Only failures the
// caller classifies as infrastructure problems should reach here; business
// declines are successes from the breaker's point of view.
func (b *Breaker) RecordFailure(ctx context.Context) {
	now := b.now()
	b.update(ctx, func(rec CircuitRecord) (CircuitRecord, bool) {
		switch rec.State {
		case CircuitClosed:
			if rec.WindowStart.IsZero() || now.Sub(rec.WindowStart) > b.cfg.Window {
				rec.Failures = 0
				rec.WindowStart = now
			}
			rec.Failures++
			if rec.Failures >= b.cfg.FailureThreshold {
				rec = CircuitRecord{State: CircuitOpen, OpenedAt: now, Version: rec.Version}
				return rec, true
			}
			return rec, false

		case CircuitHalfOpen:
			// A probe failure reopens immediately.
			rec = CircuitRecord{State: CircuitOpen, OpenedAt: now, Version: rec.Version}
			return rec, true

		default:
			return rec, false
		}
	})
}

// State reports the breaker's current state from the store.
func (b *Breaker) State(ctx context.Context) CircuitState {
	rec, err := b.store.Get(ctx, b.name)
	if err != nil {
		return CircuitClosed
	}
	return rec.State
}

func (b *Breaker) update(ctx context.Context, apply func(CircuitRecord) (CircuitRecord, bool)) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, err := b.store.Get(ctx, b.name)
		if err != nil {
			b.logger.Warn("circuit store read failed, dropping update", "circuit", b.name, "error", err)
			return
		}

		next, changed := apply(rec)
		if !changed && next == rec {
			return
		}
		next.Version = rec.Version + 1

		ok, err := b.store.CompareAndSwap(ctx, b.name, next)
		if err != nil {
			b.logger.Warn("circuit store write failed, dropping update", "circuit", b.name, "error", err)
			return
		}
		if ok {
			if changed {
				b.transitioned(next.State)
			}
			return
		}
	}
	b.logger.Warn("circuit update lost every compare-and-swap attempt", "circuit", b.name)
}

func (b *Breaker) transitioned(state CircuitState) {
	b.logger.Info("circuit state changed", "circuit", b.name, "state", string(state))
	if b.onStateChange != nil {
		b.onStateChange(b.name, state)
	}
}

// MemoryCircuitStore is a process-local CircuitStore. Production uses the
// Redis store; this one backs tests and single-instance deployments.
type MemoryCircuitStore struct {
	mu      sync.Mutex
	records map[string]CircuitRecord
}

// NewMemoryCircuitStore creates an empty in-memory store.
func NewMemoryCircuitStore() *MemoryCircuitStore {
	return &MemoryCircuitStore{records: make(map[string]CircuitRecord)}
}

func (s *MemoryCircuitStore) Get(_ context.Context, name string) (CircuitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[name]; ok {
		return rec, nil
	}
	return CircuitRecord{State: CircuitClosed}, nil
}

func (s *MemoryCircuitStore) CompareAndSwap(_ context.Context, name string, next CircuitRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[name]
	if !ok {
		current = CircuitRecord{State: CircuitClosed}
	}
	if current.Version != next.Version-1 {
		return false, nil
	}
	s.records[name] = next
	return true, nil
}

var _ CircuitStore = (*MemoryCircuitStore)(nil)

// String renders the state for logs.
func (s CircuitState) String() string { return string(s) }

// GaugeValue maps the state onto the metric encoding.
func (s CircuitState) GaugeValue() float64 {
	switch s {
	case CircuitClosed:
		return 0
	case CircuitHalfOpen:
		return 1
	case CircuitOpen:
		return 2
	default:
		return 0
	}
}

func (r CircuitRecord) String() string {
	return fmt.Sprintf("%s failures=%d probes=%d/%d v%d", r.State, r.Failures, r.ProbeSuccesses, r.ProbesIssued, r.Version)
}
