package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"finwatch/internal/core"
	"finwatch/internal/storage/memory"
)

func newTestExpenseService(store *memory.Store) (*ExpenseService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	e := NewBudgetEvaluator(store, store, notifier, WithClock(fixedClock(midMar)))
	s := NewExpenseService(store, e)
	s.now = fixedClock(midMar)
	return s, notifier
}

func TestExpenseService_Record(t *testing.T) {
	tests := []struct {
		name    string
		in      core.RawTransaction
		wantErr error
	}{
		{name: "dated", in: raw("Coffee", " Food ", "3.499", midMar)},
		{name: "undated defaults to now", in: core.RawTransaction{Description: "Tea", Category: "Food", Amount: dec("2")}},
		{name: "zero amount", in: raw("Free", "Food", "0", midMar), wantErr: core.ErrValidation},
		{name: "blank description", in: raw("  ", "Food", "1", midMar), wantErr: core.ErrValidation},
		{name: "long description", in: raw(strings.Repeat("x", 501), "Food", "1", midMar), wantErr: core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			s, _ := newTestExpenseService(store)

			entry, _, err := s.Record(context.Background(), "u1", tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Record() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			if entry.Source != core.SourceManual || !strings.HasPrefix(entry.DedupKey, "manual:") {
				t.Errorf("entry = %+v, want a manual entry", entry)
			}
			if entry.Category != "Food" {
				t.Errorf("category = %q, want trimmed", entry.Category)
			}
			if entry.OccurredAt.IsZero() || !entry.OccurredAt.Equal(midMar) {
				t.Errorf("occurred at = %v, want %v", entry.OccurredAt, midMar)
			}
		})
	}
}

func TestExpenseService_RecordTwiceKeepsBoth(t *testing.T) {
	store := memory.New()
	s, _ := newTestExpenseService(store)
	in := raw("Coffee", "Food", "3.50", midMar)

	for i := 0; i < 2; i++ {
		if _, _, err := s.Record(context.Background(), "u1", in); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	list, err := s.List(context.Background(), "u1", core.Period{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("entries = %d, want 2", len(list))
	}
}

func TestExpenseService_RecordEvaluatesBudget(t *testing.T) {
	store := memory.New()
	newBudget(t, store, "u1", "Food", "100")
	s, notifier := newTestExpenseService(store)

	_, ev, err := s.Record(context.Background(), "u1", raw("Big shop", "food", "85", midMar))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !ev.Alerted || len(notifier.byKind(core.KindBudgetAlert)) != 1 {
		t.Errorf("alerted = %v, want one alert", ev.Alerted)
	}
}

func TestExpenseService_Amend(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	newBudget(t, store, "u1", "Travel", "100")
	s, notifier := newTestExpenseService(store)

	entry, _, err := s.Record(ctx, "u1", raw("Taxi", "Misc", "90", midMar))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	category := "Travel"
	amended, err := s.Amend(ctx, "u1", entry.ID, core.Amendment{Category: &category})
	if err != nil {
		t.Fatalf("Amend() error = %v", err)
	}
	if amended.Category != "Travel" || amended.DedupKey != entry.DedupKey {
		t.Errorf("amended = %+v", amended)
	}
	if len(notifier.byKind(core.KindBudgetAlert)) != 1 {
		t.Errorf("moving spend into a budgeted category should be evaluated")
	}

	if _, err := s.Amend(ctx, "u1", "missing", core.Amendment{Category: &category}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Amend() unknown entry error = %v, want ErrNotFound", err)
	}
	if _, err := s.Amend(ctx, "u2", entry.ID, core.Amendment{Category: &category}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Amend() other user's entry error = %v, want ErrNotFound", err)
	}
	if _, err := s.Amend(ctx, "u1", entry.ID, core.Amendment{}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Amend() empty amendment error = %v, want ErrValidation", err)
	}
}
