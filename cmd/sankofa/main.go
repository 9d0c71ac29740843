package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sankofa-erp/sankofa-erp/internal/app"
	"github.com/sankofa-erp/sankofa-erp/internal/events"
	"github.com/sankofa-erp/sankofa-erp/internal/loan"
	"github.com/sankofa-erp/sankofa-erp/internal/observability"
	"github.com/sankofa-erp/sankofa-erp/internal/platform/db"
	"github.com/sankofa-erp/sankofa-erp/internal/pricing"
	"github.com/sankofa-erp/sankofa-erp/internal/reconciliation"
	"github.com/sankofa-erp/sankofa-erp/internal/settlement"
	"github.com/sankofa-erp/sankofa-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var publisher events.Publisher
	switch cfg.EventsBackend {
	case "kafka":
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBrokerList(), cfg.KafkaTopic, logger)
		if err != nil {
			logger.Error("init kafka publisher", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
	case "none":
		publisher = events.Nop()
	default:
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
		publisher = events.NewAsynqPublisher(asynqClient, cfg.EventsQueue, logger)
	}

	metrics := observability.NewMetrics()

	reconciliationRepo := reconciliation.NewRepository(pool)
	reconciliationService := reconciliation.NewService(
		reconciliationRepo, reconciliationRepo, publisher, logger, reconciliation.DefaultTolerances())

	loanRepo := loan.NewRepository(pool)
	loanService := loan.NewService(loanRepo, loan.NewLedgerCreditChecker(loanRepo), publisher, logger)

	pricingRepo := pricing.NewRepository(pool)
	performanceCache := settlement.NewPerformanceCache(redisClient, 10*time.Minute)
	settlementRepo := settlement.NewRepository(pool)
	settlementService := settlement.NewService(
		settlementRepo, pricingRepo, loanService, publisher, logger, settlement.DefaultPolicy(),
	).WithCache(performanceCache)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		ReconciliationHandler: reconciliation.NewHandler(logger, reconciliationService, metrics),
		SettlementHandler:     settlement.NewHandler(logger, settlementService, metrics),
		LoanHandler:           loan.NewHandler(logger, loanService),
		JobHandler:            jobs.NewHandler(inspector, logger),
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
