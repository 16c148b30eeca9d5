package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/audit"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/fraud"
	"github.com/meridianpay/gateway/internal/idempotency"
	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/psp"
	"github.com/meridianpay/gateway/internal/saga"
	"github.com/meridianpay/gateway/internal/tracing"
)

// Limits bounds what the gateway admits before any collaborator is contacted.
type Limits struct {
	Currencies     map[string]struct{}
	MinAmountMinor int64
	MaxAmountMinor int64
}

// AuthorizeService runs the authorization pipeline: tokenize, fraud screen,
// 3-D Secure when required, PSP routing, then one transaction persisting the
// payment, the outbox event and the idempotency record together.
type AuthorizeService struct {
	tx          application.TxRunner
	payments    application.PaymentRepository
	outbox      application.OutboxRepository
	comps       application.CompensationRepository
	deadLetters application.DeadLetterRepository
	idem        *idempotency.Store
	tokenizer   application.Tokenizer
	fraud       application.FraudScorer
	threeDS     application.ThreeDSProvider
	router      application.PaymentRouter
	bus         application.EventPublisher
	audit       *audit.Log
	limits      Limits
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewAuthorizeService(
	tx application.TxRunner,
	payments application.PaymentRepository,
	outbox application.OutboxRepository,
	comps application.CompensationRepository,
	deadLetters application.DeadLetterRepository,
	idem *idempotency.Store,
	tokenizer application.Tokenizer,
	fraudScorer application.FraudScorer,
	threeDS application.ThreeDSProvider,
	router application.PaymentRouter,
	bus application.EventPublisher,
	auditLog *audit.Log,
	limits Limits,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthorizeService {
	return &AuthorizeService{
		tx:          tx,
		payments:    payments,
		outbox:      outbox,
		comps:       comps,
		deadLetters: deadLetters,
		idem:        idem,
		tokenizer:   tokenizer,
		fraud:       fraudScorer,
		threeDS:     threeDS,
		router:      router,
		bus:         bus,
		audit:       auditLog,
		limits:      limits,
		metrics:     m,
		logger:      logger,
	}
}

// Authorize executes one authorization attempt. Business outcomes, declines
// and provider exhaustion included, come back as a rendered Result; the error
// return is reserved for requests that never reached persistence.
func (s *AuthorizeService) Authorize(ctx context.Context, cmd AuthorizeCommand) (Result, error) {
	start := time.Now()
	requestHash := idempotency.RequestHash(cmd.fingerprint())

	cached, err := checkIdempotency(ctx, s.idem, cmd.MerchantID, cmd.IdempotencyKey, requestHash)
	if err != nil {
		return Result{}, err
	}
	if cached != nil {
		return *cached, nil
	}

	if verr := s.validate(cmd); verr != nil {
		releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
		return Result{}, verr
	}

	payment, err := domain.NewPayment(cmd.MerchantID, cmd.AmountMinor, cmd.Currency, tracing.CorrelationID(ctx))
	if err != nil {
		releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
		return Result{}, err
	}

	traceID := tracing.TraceID(ctx)
	rendered, sagaResult := s.runPipeline(ctx, cmd, payment, requestHash, traceID)

	if !sagaResult.Succeeded() {
		releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)
		if len(sagaResult.FailedCompensations) > 0 {
			s.deadLetterCompensations(ctx, payment, sagaResult)
		}
		s.metrics.AuthorizationsTotal.WithLabelValues("error").Inc()
		return Result{}, normalizeError(sagaResult.StepErr)
	}

	// The result is durable; the reservation has done its job.
	releaseReservation(ctx, s.idem, s.logger, cmd.MerchantID, cmd.IdempotencyKey)

	s.metrics.AuthorizationsTotal.WithLabelValues(string(payment.Status)).Inc()
	s.metrics.AuthorizeDuration.Observe(time.Since(start).Seconds())
	s.recordAudit(ctx, payment)

	return rendered, nil
}

// runPipeline assembles and runs the authorization saga. Declines are
// business outcomes, not step failures: a step that declines the payment
// returns nil and every later step except persist and publish skips itself,
// so the outcome still lands in storage and on the bus.
func (s *AuthorizeService) runPipeline(ctx context.Context, cmd AuthorizeCommand, payment *domain.Payment, requestHash, traceID string) (Result, saga.Result) {
	var (
		card = domain.Card{
			PAN:         cmd.CardNumber,
			CVV:         cmd.CVV,
			ExpiryMonth: cmd.ExpiryMonth,
			ExpiryYear:  cmd.ExpiryYear,
			Holder:      cmd.CardHolder,
		}
		requireThreeDS bool
		evidence       *psp.ThreeDSEvidence
		rendered       Result
		outboxID       int64
		evt            domain.Event
	)

	flow := saga.New(payment.PaymentID, payment.CorrelationID, s.logger)

	flow.AddStep(saga.Step{
		Name: "tokenize",
		Execute: func(ctx context.Context) error {
			tok, err := s.tokenizer.Tokenize(ctx, card)
			if err != nil {
				return fmt.Errorf("tokenize: %w", err)
			}
			payment.CardToken = tok.Token
			payment.CardLastFour = tok.LastFour
			payment.CardBrand = tok.Brand
			// The PAN and CVV are not needed past this point.
			card = domain.Card{}
			return nil
		},
	})

	flow.AddStep(saga.Step{
		Name: "fraud_screen",
		Execute: func(ctx context.Context) error {
			if payment.Status != domain.StatusPending {
				return nil
			}
			res, err := s.fraud.Evaluate(ctx, application.FraudInput{
				PaymentID:    payment.PaymentID,
				MerchantID:   payment.MerchantID,
				AmountMinor:  payment.AmountMinor,
				Currency:     payment.Currency,
				CardToken:    payment.CardToken,
				CardLastFour: payment.CardLastFour,
				SourceIP:     cmd.SourceIP,
			})
			if err != nil {
				return fmt.Errorf("fraud evaluate: %w", err)
			}
			payment.FraudScore = &res.Score
			payment.FraudDegraded = res.Degraded
			if res.Degraded {
				s.metrics.FraudDegraded.Inc()
			}
			s.metrics.FraudScored.WithLabelValues(string(res.Decision)).Inc()

			if res.Decision == application.FraudBlock {
				reason := domain.DeclineFraudBlock
				if fraud.VelocityTriggered(res) {
					reason = domain.DeclineVelocityExceeded
				}
				return payment.Decline(reason)
			}
			requireThreeDS = res.RequireThreeDS
			return nil
		},
	})

	flow.AddStep(saga.Step{
		Name: "three_ds",
		Execute: func(ctx context.Context) error {
			if payment.Status != domain.StatusPending || !requireThreeDS {
				return nil
			}
			res, err := s.threeDS.Initiate(ctx, application.ThreeDSRequest{
				PaymentID:   payment.PaymentID,
				MerchantID:  payment.MerchantID,
				AmountMinor: payment.AmountMinor,
				Currency:    payment.Currency,
				CardToken:   payment.CardToken,
			})
			if err != nil {
				// An unreachable authenticator declines; it never waves the
				// payment through.
				outcome := "UNAVAILABLE"
				payment.ThreeDSOutcome = &outcome
				s.metrics.ThreeDSTotal.WithLabelValues("unavailable").Inc()
				s.logger.Warn("3ds initiate failed, declining",
					"payment_id", payment.PaymentID,
					"error", err)
				return payment.Decline(domain.DeclineAuthenticationFailed)
			}
			outcome := string(res.Status)
			payment.ThreeDSOutcome = &outcome
			if res.Status != application.ThreeDSAuthenticated {
				s.metrics.ThreeDSTotal.WithLabelValues("failed").Inc()
				return payment.Decline(domain.DeclineAuthenticationFailed)
			}
			s.metrics.ThreeDSTotal.WithLabelValues("authenticated").Inc()
			evidence = &psp.ThreeDSEvidence{CAVV: res.CAVV, ECI: res.ECI, XID: res.XID}
			return nil
		},
	})

	flow.AddStep(saga.Step{
		Name:   "psp_authorize",
		Action: domain.CompensationVoidAuth,
		Execute: func(ctx context.Context) error {
			if payment.Status != domain.StatusPending {
				return nil
			}
			res, err := s.router.Authorize(ctx, psp.AuthRequest{
				PaymentID:     payment.PaymentID,
				MerchantID:    payment.MerchantID,
				AmountMinor:   payment.AmountMinor,
				Currency:      payment.Currency,
				CardToken:     payment.CardToken,
				ThreeDS:       evidence,
				CorrelationID: payment.CorrelationID,
			})
			if err != nil {
				if application.IsRetryable(err) {
					// Every provider exhausted: a definitive outcome worth
					// persisting, not a pipeline abort.
					s.logger.Error("authorization failed across all providers",
						"payment_id", payment.PaymentID,
						"error", err)
					return payment.Fail()
				}
				return fmt.Errorf("psp authorize: %w", err)
			}
			if !res.Approved {
				return payment.Decline(res.DeclineCode)
			}
			return payment.Authorize(res.Provider, res.AuthRef, time.Now().UTC())
		},
		Compensate: func(ctx context.Context) error {
			if payment.Status != domain.StatusAuthorized {
				return nil
			}
			task := domain.NewCompensationTask(payment.PaymentID, domain.CompensationVoidAuth, map[string]any{
				"provider": deref(payment.PSPName),
				"auth_ref": deref(payment.PSPAuthRef),
			})
			return s.comps.Enqueue(ctx, task)
		},
	})

	flow.AddStep(saga.Step{
		Name: "persist",
		Execute: func(ctx context.Context) error {
			res, err := render(statusCodeFor(payment), newPaymentResponse(payment, traceID))
			if err != nil {
				return err
			}
			evt = domain.NewEvent(eventTypeFor(payment), payment.PaymentID, payment.CorrelationID, traceID, domain.PaymentEventPayload(payment))

			txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
				if err := s.payments.Create(ctx, payment); err != nil {
					return err
				}
				id, err := s.outbox.Enqueue(ctx, evt)
				if err != nil {
					return err
				}
				outboxID = id
				if cmd.IdempotencyKey != "" {
					rec := s.idem.Snapshot(cmd.MerchantID, cmd.IdempotencyKey, requestHash, res.StatusCode, res.Body)
					return s.idem.SaveRecord(ctx, rec)
				}
				return nil
			})
			if txErr != nil {
				return fmt.Errorf("persist payment: %w", txErr)
			}
			rendered = res
			return nil
		},
	})

	flow.AddStep(saga.Step{
		Name: "publish",
		Execute: func(ctx context.Context) error {
			publishBuffered(ctx, s.bus, s.outbox, s.logger, outboxID, evt)
			return nil
		},
	})

	return rendered, flow.Run(ctx)
}

func (s *AuthorizeService) validate(cmd AuthorizeCommand) error {
	details := map[string]string{}
	if cmd.MerchantID == "" {
		details["merchant_id"] = "required"
	}
	if cmd.AmountMinor < s.limits.MinAmountMinor {
		details["amount_minor"] = fmt.Sprintf("must be at least %d", s.limits.MinAmountMinor)
	}
	if s.limits.MaxAmountMinor > 0 && cmd.AmountMinor > s.limits.MaxAmountMinor {
		details["amount_minor"] = fmt.Sprintf("must not exceed %d", s.limits.MaxAmountMinor)
	}
	if _, ok := s.limits.Currencies[strings.ToUpper(cmd.Currency)]; !ok {
		details["currency"] = "unsupported currency"
	}

	card := domain.Card{
		PAN:         cmd.CardNumber,
		CVV:         cmd.CVV,
		ExpiryMonth: cmd.ExpiryMonth,
		ExpiryYear:  cmd.ExpiryYear,
	}
	if !card.ValidPAN() {
		details["card_number"] = "invalid card number"
	}
	if !card.ValidCVV() {
		details["cvv"] = "must be 3 or 4 digits"
	}
	if card.Expired(time.Now().UTC()) {
		details["expiry"] = "card is expired"
	}

	if len(details) > 0 {
		return application.NewValidationError("authorization request rejected", details)
	}
	return nil
}

func (s *AuthorizeService) recordAudit(ctx context.Context, p *domain.Payment) {
	action := domain.AuditPaymentAuthorized
	switch p.Status {
	case domain.StatusDeclined:
		action = domain.AuditPaymentDeclined
	case domain.StatusFailed:
		action = domain.AuditPaymentFailed
	}
	details := map[string]any{
		"amount_minor": p.AmountMinor,
		"currency":     p.Currency,
		"status":       string(p.Status),
	}
	if p.PSPName != nil {
		details["psp"] = *p.PSPName
	}
	if p.DeclineReason != nil {
		details["decline_reason"] = string(*p.DeclineReason)
	}
	if p.FraudScore != nil {
		details["fraud_score"] = *p.FraudScore
	}
	if p.FraudDegraded {
		details["fraud_degraded"] = true
	}
	s.audit.Record(ctx, action, p.PaymentID, p.MerchantID, details)
}

// deadLetterCompensations records undo actions that could not even be queued,
// so reconciliation can pick them up by hand.
func (s *AuthorizeService) deadLetterCompensations(ctx context.Context, p *domain.Payment, res saga.Result) {
	for _, fc := range res.FailedCompensations {
		entry := &domain.DeadLetter{
			Operation: fc.Step.Action,
			PaymentID: p.PaymentID,
			Payload: map[string]any{
				"provider": deref(p.PSPName),
				"auth_ref": deref(p.PSPAuthRef),
			},
			FailureChain: fmt.Sprintf("step %s failed: %v; compensation failed: %v", res.FailedStep, res.StepErr, fc.Err),
		}
		if err := s.deadLetters.Add(ctx, entry); err != nil {
			s.logger.Error("dead letter write failed",
				"payment_id", p.PaymentID,
				"operation", fc.Step.Action,
				"error", err)
		}
		s.metrics.DeadLetteredTotal.WithLabelValues(fc.Step.Action).Inc()
	}
}

func statusCodeFor(p *domain.Payment) int {
	switch p.Status {
	case domain.StatusAuthorized:
		return http.StatusCreated
	case domain.StatusDeclined:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func eventTypeFor(p *domain.Payment) domain.EventType {
	switch p.Status {
	case domain.StatusAuthorized:
		return domain.EventPaymentAuthorized
	case domain.StatusDeclined:
		return domain.EventPaymentDeclined
	default:
		return domain.EventPaymentFailed
	}
}

