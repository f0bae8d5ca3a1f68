package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage/memory"
)

func TestReportService_CategorySummary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	spend(t, store, "u1", "Food", "10", "a")
	spend(t, store, "u1", "food", "5", "b")
	spend(t, store, "u1", "Rent", "800", "c")
	seed(t, store, "u1", "99", "old", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC))

	r := NewReportService(store)
	r.now = fixedClock(midMar)

	got, err := r.CategorySummary(ctx, "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("CategorySummary() error = %v", err)
	}
	if len(got) != 2 || got[0].Category != "Rent" || !got[1].Amount.Equal(dec("15")) {
		t.Errorf("summary = %+v", got)
	}

	if _, err := r.CategorySummary(ctx, "u1", midMar, midMar); !errors.Is(err, core.ErrValidation) {
		t.Errorf("empty range error = %v, want ErrValidation", err)
	}
}

func TestReportService_MonthlyTrends(t *testing.T) {
	store := memory.New()
	seed(t, store, "u1", "20", "jan", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	seed(t, store, "u1", "30", "mar", midMar)
	seed(t, store, "u1", "12.5", "mar2", midMar.Add(time.Hour))

	got, err := NewReportService(store).MonthlyTrends(context.Background(), "u1")
	if err != nil {
		t.Fatalf("MonthlyTrends() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("months = %d, want 2", len(got))
	}
	if got[0].Period.Key() != "2024-01" || !got[1].Amount.Equal(dec("42.5")) {
		t.Errorf("trends = %+v", got)
	}
}
