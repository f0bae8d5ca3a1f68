package main

import (
	"context"
	"errors"
	"time"

	"finwatch/internal/amqp"
	"finwatch/internal/banking"
	"finwatch/internal/cli"
	"finwatch/internal/config"
	applog "finwatch/internal/log"
	"finwatch/internal/services"
	"finwatch/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting sync-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.RequireSharedStore(); err != nil {
		cli.Fatal(logger, "sync-worker needs the store shared with the API process", err)
	}
	if cfg.EventsBackend != config.EventsAMQP {
		cli.Fatal(logger, "sync-worker consumes from AMQP", errors.New("EVENTS_BACKEND must be amqp"))
	}
	if cfg.BankingBaseURL == "" {
		cli.Fatal(logger, "sync-worker needs the banking collaborator", errors.New("BANKING_BASE_URL is not set"))
	}

	be := cli.InitBackend(context.Background(), logger, cfg)
	client, ok := be.Events.(*amqp.Client)
	if !ok {
		_ = be.Cleanup()
		cli.Fatal(logger, "AMQP broker unavailable", errors.New("no AMQP client after backend init"))
	}

	dispatcher := services.NewDispatcher(be.Store, nil, be.Events)
	evaluator := services.NewBudgetEvaluator(be.Store, be.Store, dispatcher,
		services.WithThreshold(cfg.AlertThreshold))
	source := banking.NewClient(banking.Config{
		BaseURL:    cfg.BankingBaseURL,
		Timeout:    cfg.BankingTimeout,
		MaxRetries: cfg.BankingMaxRetries,
	})
	syncWorker := worker.NewSyncWorker(services.NewIngestor(be.Store, evaluator, source, cfg.BankingTimeout))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	})

	go func() {
		if err := client.ConsumeSyncRequests(ctx, syncWorker.HandleSyncRequest); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	logger.Info("Consuming sync requests", "queue", cfg.AMQPSyncQueue, "exchange", cfg.AMQPExchange)
	cli.WaitForShutdown(ctx, done)
	logger.Info("Sync worker stopped")
}
