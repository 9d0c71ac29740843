package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sankofa-erp/sankofa-erp/internal/app"
	"github.com/sankofa-erp/sankofa-erp/internal/events"
	"github.com/sankofa-erp/sankofa-erp/internal/platform/db"
	"github.com/sankofa-erp/sankofa-erp/internal/reconciliation"
	"github.com/sankofa-erp/sankofa-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	publisher := events.NewAsynqPublisher(asynqClient, cfg.EventsQueue, logger)

	reconciliationRepo := reconciliation.NewRepository(pool)
	reconciliationService := reconciliation.NewService(
		reconciliationRepo, reconciliationRepo, publisher, logger, reconciliation.DefaultTolerances())

	jobsRepo := jobs.NewRepository(pool)
	journalJob := jobs.NewJournalJob(jobsRepo, logger)
	sweepJob := jobs.NewSweepJob(jobsRepo, reconciliationService, logger)
	notifyJob := jobs.NewNotifyJob(logger)

	var cron []jobs.CronRegistration
	if cfg.ReconciliationSweepCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.ReconciliationSweepCron,
			Task:    jobs.NewSweepTask(),
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskJournalCreate, Handler: journalJob.Handle},
			{Type: jobs.TaskReconciliationSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskSettlementCreated, Handler: notifyJob.Handle},
			{Type: jobs.TaskSettlementPaid, Handler: notifyJob.Handle},
			{Type: jobs.TaskLoanCreated, Handler: notifyJob.Handle},
			{Type: jobs.TaskSettlementsBulkDone, Handler: notifyJob.Handle},
			{Type: jobs.TaskReconciliationDone, Handler: notifyJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
