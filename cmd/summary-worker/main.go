package main

import (
	"context"
	"time"

	"finwatch/internal/cli"
	"finwatch/internal/export/sheets"
	applog "finwatch/internal/log"
	"finwatch/internal/scheduler"
	"finwatch/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSummary)
	logger.Info("Starting summary-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.RequireSharedStore(); err != nil {
		cli.Fatal(logger, "summary-worker needs the store shared with the API process", err)
	}
	be := cli.InitBackend(context.Background(), logger, cfg)

	// No live connections here; summaries reach clients through the
	// notification store and the broker events.
	dispatcher := services.NewDispatcher(be.Store, nil, be.Events)

	var exporter services.SummaryExporter
	if cfg.SheetsExportEnabled() {
		exp, err := sheets.New(context.Background(), sheets.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSummarySheet,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		})
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets exporter", err)
		}
		exporter = exp
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	summarizer := services.NewSummarizer(be.Store, be.Store, dispatcher, exporter, services.SummarizerConfig{
		UserTimeout: cfg.SummaryUserTimeout,
		Concurrency: cfg.SummaryConcurrency,
	})

	logger.Info("Summary scheduler configured",
		"interval", cfg.SummaryInterval,
		"concurrency", cfg.SummaryConcurrency,
		"backend", cfg.DataBackend)
	job := scheduler.OnTick(context.Background(), cfg.SummaryInterval, summarizer.Tick)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		job.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	})

	cli.WaitForShutdown(ctx, done)
	logger.Info("Summary worker stopped")
}
