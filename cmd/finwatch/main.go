package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finwatch/internal/amqp"
	"finwatch/internal/banking"
	"finwatch/internal/cache"
	"finwatch/internal/cli"
	"finwatch/internal/core"
	apphttp "finwatch/internal/http"
	applog "finwatch/internal/log"
	"finwatch/internal/realtime"
	"finwatch/internal/services"
)

const budgetCacheSize = 1000

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger)
	be := cli.InitBackend(context.Background(), logger, cfg)

	budgetCache := cache.NewLRUCache[[]core.Budget](budgetCacheSize, cfg.BudgetCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(budgetCache)
	cacheManager.StartCleanup(time.Minute)

	registry := realtime.NewRegistry()
	dispatcher := services.NewDispatcher(be.Store, registry, be.Events)
	evaluator := services.NewBudgetEvaluator(be.Store, be.Store, dispatcher,
		services.WithBudgetCache(budgetCache),
		services.WithThreshold(cfg.AlertThreshold))

	var source services.TransactionSource
	if cfg.BankingBaseURL != "" {
		source = banking.NewClient(banking.Config{
			BaseURL:    cfg.BankingBaseURL,
			Timeout:    cfg.BankingTimeout,
			MaxRetries: cfg.BankingMaxRetries,
		})
		logger.Info("Banking collaborator configured", "base_url", cfg.BankingBaseURL)
	} else {
		logger.Warn("BANKING_BASE_URL not set, bank sync is disabled")
	}

	deps := apphttp.Deps{
		Expenses:          services.NewExpenseService(be.Store, evaluator),
		Budgets:           services.NewBudgetService(be.Store, be.Store, evaluator),
		Goals:             services.NewGoalService(be.Store, be.Store),
		Reports:           services.NewReportService(be.Store),
		Notifications:     dispatcher,
		Ingestor:          services.NewIngestor(be.Store, evaluator, source, cfg.BankingTimeout),
		Registry:          registry,
		Ready:             func(ctx context.Context) error { _, err := be.Store.ListUsers(ctx); return err },
		SyncRatePerMinute: cfg.SyncRatePerMinute,
		OutboxSize:        cfg.OutboxSize,
	}
	// Sync requests go to sync-worker when the AMQP broker is up, and
	// notifications created by the workers come back for live push.
	client, hasBroker := be.Events.(*amqp.Client)
	if hasBroker {
		deps.SyncQueue = client
		logger.Info("Bank sync requests are queued for sync-worker", "queue", cfg.AMQPSyncQueue)
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	})

	if hasBroker {
		go func() {
			err := client.ConsumeNotifications(ctx, func(_ context.Context, n core.Notification) error {
				registry.Push(n.UserID, n)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Notification consumer stopped", "error", err)
			}
		}()
		logger.Info("Forwarding worker notifications to live connections", "queue", cfg.AMQPNotifyQueue)
	}

	logger.Info("Starting finwatch server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", cfg.EventsBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
