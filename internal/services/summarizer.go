package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is reported when a tick arrives while a run is active.
var ErrRunInProgress = errors.New("summary run already in progress")

// SummarizerConfig holds configuration for the periodic summarizer
type SummarizerConfig struct {
	// UserTimeout bounds the work done for a single user (default: 30s)
	UserTimeout time.Duration

	// Concurrency is the number of users summarised in parallel (default: 4)
	Concurrency int
}

func DefaultSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		UserTimeout: 30 * time.Second,
		Concurrency: 4,
	}
}

// Summary is the month-to-date total computed for one user.
type Summary struct {
	UserID      string
	Period      core.Period
	Total       decimal.Decimal
	GeneratedAt time.Time
}

// SummaryExporter mirrors summaries to an external destination.
type SummaryExporter interface {
	ExportSummaries(ctx context.Context, summaries []Summary) error
}

// RunReport describes one summarizer run.
type RunReport struct {
	Period     core.Period
	Users      int
	Summarized int
	FlagsReset int64
	// Failed maps user IDs to the error that stopped their summary.
	Failed map[string]error
	// Err is set when the run could not start at all.
	Err error
}

// Summarizer emits month-to-date spending summaries for every user. It is
// Idle or Running; a run requested while Running is skipped.
type Summarizer struct {
	ledger   storage.LedgerStore
	budgets  storage.BudgetStore
	notifier Notifier
	exporter SummaryExporter
	config   SummarizerConfig

	running atomic.Bool
}

// NewSummarizer wires a summarizer. budgets and exporter may be nil.
func NewSummarizer(ledger storage.LedgerStore, budgets storage.BudgetStore, notifier Notifier, exporter SummaryExporter, config SummarizerConfig) *Summarizer {
	def := DefaultSummarizerConfig()
	if config.UserTimeout <= 0 {
		config.UserTimeout = def.UserTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	return &Summarizer{
		ledger:   ledger,
		budgets:  budgets,
		notifier: notifier,
		exporter: exporter,
		config:   config,
	}
}

// IsRunning reports whether a run is in progress.
func (s *Summarizer) IsRunning() bool {
	return s.running.Load()
}

// Tick is the scheduler callback. It runs once and logs the report.
func (s *Summarizer) Tick(ctx context.Context, now time.Time) {
	report := s.Run(ctx, now)
	switch {
	case errors.Is(report.Err, ErrRunInProgress):
		slog.WarnContext(ctx, "Summary tick skipped, previous run still active", "component", "summary")
	case report.Err != nil:
		slog.ErrorContext(ctx, "Summary run failed", "component", "summary", "error", report.Err)
	default:
		slog.InfoContext(ctx, "Summary run completed",
			"component", "summary",
			"period", report.Period.Key(),
			"users", report.Users,
			"summarized", report.Summarized,
			"failed", len(report.Failed),
			"flags_reset", report.FlagsReset)
	}
}

// Run summarises every user as of now. Entries recorded after now are not
// counted, so a sync committing while the run is active is never half
// included. A failure for one user is recorded and the run moves on.
func (s *Summarizer) Run(ctx context.Context, now time.Time) RunReport {
	now = now.UTC()
	period := core.PeriodOf(now)
	report := RunReport{Period: period, Failed: map[string]error{}}

	if !s.running.CompareAndSwap(false, true) {
		report.Err = ErrRunInProgress
		return report
	}
	defer s.running.Store(false)

	if s.budgets != nil {
		n, err := s.budgets.ResetStaleFlags(ctx, period)
		if err != nil {
			slog.WarnContext(ctx, "Failed to reset stale budget flags", "component", "summary", "error", err)
		}
		report.FlagsReset = n
	}

	users, err := s.ledger.ListUsers(ctx)
	if err != nil {
		report.Err = fmt.Errorf("list users: %w", err)
		return report
	}
	report.Users = len(users)

	var (
		mu        sync.Mutex
		summaries []Summary
		g         errgroup.Group
	)
	g.SetLimit(s.config.Concurrency)
	for _, userID := range users {
		g.Go(func() error {
			sum, err := s.summarizeUser(ctx, userID, period, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[userID] = err
				slog.ErrorContext(ctx, "Summary failed for user",
					"component", "summary", "user_id", userID, "error", err)
				return nil
			}
			summaries = append(summaries, sum)
			return nil
		})
	}
	_ = g.Wait()
	report.Summarized = len(summaries)

	if s.exporter != nil && len(summaries) > 0 {
		if err := s.exporter.ExportSummaries(ctx, summaries); err != nil {
			slog.WarnContext(ctx, "Failed to export summaries", "component", "summary", "error", err)
		}
	}
	return report
}

func (s *Summarizer) summarizeUser(ctx context.Context, userID string, period core.Period, now time.Time) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.UserTimeout)
	defer cancel()

	total, err := s.ledger.SumSince(ctx, userID, period.Start(), now, now)
	if err != nil {
		return Summary{}, fmt.Errorf("sum spend: %w", err)
	}
	if _, err := s.notifier.Enqueue(ctx, userID, core.KindMonthlySummary, SummaryMessage(period, total)); err != nil {
		return Summary{}, fmt.Errorf("enqueue summary: %w", err)
	}
	return Summary{UserID: userID, Period: period, Total: total, GeneratedAt: now}, nil
}

// SummaryMessage renders the monthly summary text, e.g.
// "Spending summary for 2024-03: you have spent a total of 250.75 this month."
func SummaryMessage(p core.Period, total decimal.Decimal) string {
	return fmt.Sprintf("Spending summary for %s: you have spent a total of %s this month.",
		p.Key(), core.FormatAmount(total))
}
