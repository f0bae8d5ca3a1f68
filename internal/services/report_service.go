package services

import (
	"context"
	"fmt"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage"
)

// ReportService answers read-only spending reports straight from the ledger.
type ReportService struct {
	ledger storage.LedgerStore
	now    func() time.Time
}

func NewReportService(ledger storage.LedgerStore) *ReportService {
	return &ReportService{ledger: ledger, now: time.Now}
}

// CategorySummary totals spend per category with OccurredAt in [from, to).
// Zero bounds default to the current period.
func (s *ReportService) CategorySummary(ctx context.Context, userID string, from, to time.Time) ([]core.CategoryAmount, error) {
	if err := core.RequireUser(userID); err != nil {
		return nil, err
	}
	p := core.PeriodOf(s.now())
	if from.IsZero() {
		from = p.Start()
	}
	if to.IsZero() {
		to = p.End()
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: report range is empty", core.ErrValidation)
	}
	totals, err := s.ledger.CategoryTotals(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	return totals, nil
}

// MonthlyTrends returns one total per month with spend, oldest first.
func (s *ReportService) MonthlyTrends(ctx context.Context, userID string) ([]core.MonthAmount, error) {
	if err := core.RequireUser(userID); err != nil {
		return nil, err
	}
	months, err := s.ledger.MonthlyTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("monthly trends: %w", err)
	}
	return months, nil
}
