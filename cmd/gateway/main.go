package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianpay/gateway/internal/application/services"
	"github.com/meridianpay/gateway/internal/audit"
	"github.com/meridianpay/gateway/internal/config"
	"github.com/meridianpay/gateway/internal/events"
	"github.com/meridianpay/gateway/internal/fraud"
	"github.com/meridianpay/gateway/internal/idempotency"
	"github.com/meridianpay/gateway/internal/infrastructure/acquirer"
	"github.com/meridianpay/gateway/internal/infrastructure/kafka"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence/postgres"
	"github.com/meridianpay/gateway/internal/infrastructure/providers"
	"github.com/meridianpay/gateway/internal/infrastructure/redis"
	"github.com/meridianpay/gateway/internal/infrastructure/scoring"
	"github.com/meridianpay/gateway/internal/infrastructure/threeds"
	"github.com/meridianpay/gateway/internal/infrastructure/tokenization"
	"github.com/meridianpay/gateway/internal/interfaces/rest/handlers"
	"github.com/meridianpay/gateway/internal/interfaces/rest/middleware"
	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/psp"
	"github.com/meridianpay/gateway/internal/resilience"
	"github.com/meridianpay/gateway/internal/settlement"
	"github.com/meridianpay/gateway/internal/webhook"
	"github.com/meridianpay/gateway/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting gateway service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()

	db, err := persistence.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.Connect(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	kafkaClient, err := kafka.NewClient(cfg.Kafka, logger)
	if err != nil {
		logger.Error("failed to connect to kafka", "error", err)
		os.Exit(1)
	}
	defer kafkaClient.Close()

	producer, err := kafka.NewSyncProducer(kafkaClient)
	if err != nil {
		logger.Error("failed to create kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	consumerGroup, err := kafka.NewConsumerGroup(kafkaClient, cfg.Kafka.ConsumerGroup)
	if err != nil {
		logger.Error("failed to create kafka consumer group", "error", err)
		os.Exit(1)
	}
	defer consumerGroup.Close()

	m := metrics.New()

	txRunner := postgres.NewTransactionCoordinator(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	refundRepo := postgres.NewRefundRepository(db)
	merchantRepo := postgres.NewMerchantRepository(db)
	idempotencyRepo := postgres.NewIdempotencyRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)
	disputeRepo := postgres.NewDisputeRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	compensationRepo := postgres.NewCompensationRepository(db)
	deadLetterRepo := postgres.NewDeadLetterRepository(db)
	webhookRepo := postgres.NewWebhookDeliveryRepository(db)

	locks := redis.NewLockStore(redisClient)
	counters := redis.NewCounterStore(redisClient)
	circuitStore := redis.NewCircuitStore(redisClient)
	dedup := redis.NewDeduplicator(redisClient, cfg.Kafka.DedupTTL)

	idemStore := idempotency.NewStore(locks, idempotencyRepo, cfg.Idempotency.TTL, cfg.Idempotency.LockTTL)
	auditLog := audit.NewLog(auditRepo, logger)

	schemaRegistry, err := events.NewSchemaRegistry()
	if err != nil {
		logger.Error("failed to compile event schemas", "error", err)
		os.Exit(1)
	}
	bus := events.NewPublisher(producer, cfg.Kafka.PaymentTopic, schemaRegistry, logger, m)

	retryPolicy := resilience.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	circuitCfg := resilience.CircuitConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		Window:           cfg.Circuit.Window,
		OpenTimeout:      cfg.Circuit.OpenTimeout,
		HalfOpenProbes:   cfg.Circuit.HalfOpenProbes,
	}

	pspProviders := make([]psp.Provider, 0, 3)
	for _, pc := range cfg.PSP.Ordered() {
		pspProviders = append(pspProviders, providers.NewClient(pc))
	}
	router := psp.NewRouter(pspProviders, circuitStore, circuitCfg, retryPolicy, logger, m)

	tokenizer := tokenization.NewClient(cfg.Tokenizer)
	thresholds := fraud.Thresholds{
		Review:  cfg.Fraud.ReviewThreshold,
		Block:   cfg.Fraud.BlockThreshold,
		ThreeDS: cfg.Fraud.ThreeDSThreshold,
	}
	fallbackRules := fraud.NewRules(cfg.Fraud.BlocklistIPs(), counters, cfg.Fraud.VelocityLimit, cfg.Fraud.VelocityWindow, thresholds, logger)
	scorer := scoring.NewClient(cfg.Fraud, fallbackRules, logger)
	threeDSClient := threeds.NewClient(cfg.ThreeDS)
	acquirerClient := acquirer.NewClient(cfg.Acquirer)

	limits := services.Limits{
		Currencies:     cfg.Payment.CurrencySet(),
		MinAmountMinor: cfg.Payment.MinAmountMinor,
		MaxAmountMinor: cfg.Payment.MaxAmountMinor,
	}
	authorizeService := services.NewAuthorizeService(
		txRunner, paymentRepo, outboxRepo, compensationRepo, deadLetterRepo,
		idemStore, tokenizer, scorer, threeDSClient, router, bus, auditLog,
		limits, m, logger,
	)
	captureService := services.NewCaptureService(txRunner, paymentRepo, outboxRepo, idemStore, router, bus, auditLog, m, logger)
	voidService := services.NewVoidService(txRunner, paymentRepo, outboxRepo, idemStore, router, bus, auditLog, m, logger)
	refundService := services.NewRefundService(txRunner, paymentRepo, refundRepo, outboxRepo, idemStore, router, bus, auditLog, m, logger)
	queryService := services.NewQueryService(paymentRepo, refundRepo)

	fees := settlement.Fees{BasisPts: cfg.Acquirer.FeeBasisPts, FixedMinor: cfg.Acquirer.FeeFixedMinor}
	engine := settlement.NewEngine(
		txRunner, paymentRepo, settlementRepo, disputeRepo, outboxRepo,
		acquirerClient, bus, auditLog, fees, m, logger,
	)

	dispatcher := webhook.NewDispatcher(webhookRepo, merchantRepo, auditLog, cfg.Webhook, m, logger)
	fanout := webhook.NewFanout(webhookRepo, merchantRepo, logger)

	consumer := events.NewConsumer(consumerGroup, []string{cfg.Kafka.PaymentTopic}, dedup, producer, cfg.Kafka.DLQTopic, logger, m)
	for _, eventType := range webhook.NotifiedEventTypes {
		consumer.Register(eventType, fanout.Handle)
	}

	h := handlers.NewHandlers(
		authorizeService,
		captureService,
		voidService,
		refundService,
		queryService,
		logger,
	)

	authMW := middleware.Auth(merchantRepo, cfg.Auth.JWTSecret, logger)
	rateMW := middleware.RateLimit(counters, cfg.Server.RateLimitRPS, logger)
	authed := func(next http.Handler) http.Handler {
		return authMW(rateMW(next))
	}

	mux := http.NewServeMux()
	h.Register(mux, authed)
	handlers.NewChargebacks(engine, cfg.Acquirer.ChargebackToken, logger).Register(mux)
	handlers.NewHealth(map[string]handlers.HealthCheck{
		"database": db.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		"kafka": func(ctx context.Context) error {
			if !kafka.Healthy(kafkaClient) {
				return errors.New("no reachable brokers")
			}
			return nil
		},
	}).Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	// Logging must wrap the mux directly: the mux stamps the matched route
	// pattern on the request in place, and TimeoutHandler serves inner
	// handlers with a copy.
	handler := middleware.Logging(logger, m)(mux)
	handler = middleware.Trace()(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.Timeout(cfg.Server.RequestTimeout)(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	outboxWorker := worker.NewOutboxWorker(outboxRepo, bus, cfg.Worker.OutboxInterval, m, logger)
	compensationWorker := worker.NewCompensationWorker(
		compensationRepo, deadLetterRepo, router, auditLog,
		retryPolicy, cfg.Worker.CompensationInterval, m, logger,
	)
	webhookWorker := worker.NewWebhookWorker(webhookRepo, dispatcher, cfg.Worker.WebhookInterval, logger)
	settlementWorker := worker.NewSettlementWorker(engine, cfg.Settlement.CutoffHourUTC, cfg.Worker.SettlementInterval, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go outboxWorker.Start(workerCtx)
	go compensationWorker.Start(workerCtx)
	go webhookWorker.Start(workerCtx)
	go settlementWorker.Start(workerCtx)
	go func() {
		if err := consumer.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event consumer stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
