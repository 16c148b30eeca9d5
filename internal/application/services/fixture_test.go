package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianpay/gateway/internal/application/services"
	"github.com/meridianpay/gateway/internal/audit"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/idempotency"
	"github.com/meridianpay/gateway/internal/metrics"
)

type fixture struct {
	tx          *memTx
	payments    *memPayments
	refunds     *memRefunds
	outbox      *memOutbox
	comps       *memCompensations
	deadLetters *memDeadLetters
	auditRepo   *memAudit
	locker      *memLocker
	records     *memRecords
	idem        *idempotency.Store
	tokenizer   *stubTokenizer
	fraud       *stubFraud
	threeDS     *stubThreeDS
	router      *stubRouter
	bus         *stubBus

	authorize *services.AuthorizeService
	capture   *services.CaptureService
	void      *services.VoidService
	refund    *services.RefundService
	query     *services.QueryService
}

func newFixture() *fixture {
	f := &fixture{
		tx:          &memTx{},
		payments:    newMemPayments(),
		refunds:     newMemRefunds(),
		outbox:      newMemOutbox(),
		comps:       &memCompensations{},
		deadLetters: &memDeadLetters{},
		auditRepo:   &memAudit{},
		locker:      newMemLocker(),
		records:     newMemRecords(),
		tokenizer:   &stubTokenizer{},
		fraud:       &stubFraud{},
		threeDS:     &stubThreeDS{},
		router:      &stubRouter{},
		bus:         &stubBus{},
	}
	f.idem = idempotency.NewStore(f.locker, f.records, 24*time.Hour, 30*time.Second)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := audit.NewLog(f.auditRepo, logger)
	m := metrics.New()

	limits := services.Limits{
		Currencies:     map[string]struct{}{"USD": {}, "EUR": {}, "GBP": {}},
		MinAmountMinor: 50,
		MaxAmountMinor: 100_000_000,
	}

	f.authorize = services.NewAuthorizeService(
		f.tx, f.payments, f.outbox, f.comps, f.deadLetters, f.idem,
		f.tokenizer, f.fraud, f.threeDS, f.router, f.bus,
		auditLog, limits, m, logger,
	)
	f.capture = services.NewCaptureService(
		f.tx, f.payments, f.outbox, f.idem, f.router, f.bus, auditLog, m, logger,
	)
	f.void = services.NewVoidService(
		f.tx, f.payments, f.outbox, f.idem, f.router, f.bus, auditLog, m, logger,
	)
	f.refund = services.NewRefundService(
		f.tx, f.payments, f.refunds, f.outbox, f.idem, f.router, f.bus, auditLog, m, logger,
	)
	f.query = services.NewQueryService(f.payments, f.refunds)
	return f
}

func defaultAuthorizeCommand() services.AuthorizeCommand {
	return services.AuthorizeCommand{
		MerchantID:  "mch_1",
		AmountMinor: 10000,
		Currency:    "USD",
		CardNumber:  "4242424242424242",
		CVV:         "123",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CardHolder:  "Ada Lovelace",
		SourceIP:    "198.51.100.7",
	}
}

// seedAuthorized plants an AUTHORIZED payment for capture and void tests.
func seedAuthorized(t *testing.T, f *fixture, merchantID string, amountMinor int64) *domain.Payment {
	t.Helper()
	p, err := domain.NewPayment(merchantID, amountMinor, "USD", "corr-seed")
	require.NoError(t, err)
	p.CardToken = "tok_4242"
	p.CardLastFour = "4242"
	p.CardBrand = domain.BrandVisa
	require.NoError(t, p.Authorize("alpha", "auth-1", time.Now().UTC()))
	require.NoError(t, f.payments.Create(context.Background(), p))
	return p
}

// seedCaptured plants a CAPTURED payment for refund tests.
func seedCaptured(t *testing.T, f *fixture, merchantID string, amountMinor int64) *domain.Payment {
	t.Helper()
	p := seedAuthorized(t, f, merchantID, amountMinor)
	require.NoError(t, p.Capture("cap-1", time.Now().UTC()))
	f.payments.put(p)
	return p
}
