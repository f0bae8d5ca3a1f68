package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage/memory"
	"finwatch/internal/storage/storetest"
)

func newTestGoalService(store *memory.Store) *GoalService {
	s := NewGoalService(store, store)
	s.now = fixedClock(midMar)
	return s
}

func spendAt(t *testing.T, s *memory.Store, category, amount, desc string, at time.Time) {
	t.Helper()
	if _, err := s.InsertIfAbsent(context.Background(), storetest.Entry("u1", category, amount, desc, at)); err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}
}

func TestGoalService_CreateValidation(t *testing.T) {
	deadline := time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		in      GoalInput
		wantErr error
	}{
		{name: "valid", in: GoalInput{Title: "Trip", Category: " Travel ", Target: dec("500"), Deadline: deadline}},
		{name: "blank title", in: GoalInput{Title: " ", Category: "Travel", Target: dec("500"), Deadline: deadline}, wantErr: core.ErrEmptyTitle},
		{name: "zero target", in: GoalInput{Title: "Trip", Category: "Travel", Target: dec("0"), Deadline: deadline}, wantErr: core.ErrInvalidTarget},
		{name: "no deadline", in: GoalInput{Title: "Trip", Category: "Travel", Target: dec("500")}, wantErr: core.ErrZeroDeadline},
		{name: "no category", in: GoalInput{Title: "Trip", Target: dec("500"), Deadline: deadline}, wantErr: core.ErrEmptyCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestGoalService(memory.New())
			p, err := s.Create(context.Background(), "u1", tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, core.ErrValidation) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if p.Goal.ID == "" || p.Goal.Category != "Travel" {
				t.Errorf("goal = %+v", p.Goal)
			}
			if !p.Goal.Deadline.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("deadline = %v, want midnight", p.Goal.Deadline)
			}
			if !p.Progress.IsZero() || !p.Remaining.Equal(dec("500")) || p.Achieved {
				t.Errorf("progress = %+v", p)
			}
		})
	}
}

func TestGoalService_RequiresUser(t *testing.T) {
	s := newTestGoalService(memory.New())
	if _, err := s.List(context.Background(), ""); !errors.Is(err, core.ErrMissingUser) {
		t.Fatalf("List() error = %v, want ErrMissingUser", err)
	}
}

func TestGoalService_Progress(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := newTestGoalService(store)
	g, err := s.Create(ctx, "u1", GoalInput{
		Title:    "Holiday",
		Category: "Travel",
		Target:   dec("300"),
		Deadline: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	spendAt(t, store, "Travel", "40", "before the goal", time.Date(2024, 3, 14, 23, 0, 0, 0, time.UTC))
	spendAt(t, store, "Travel", "100", "creation day", time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC))
	spendAt(t, store, "Travel", "150", "deadline evening", time.Date(2024, 3, 31, 22, 0, 0, 0, time.UTC))
	spendAt(t, store, "Travel", "999", "after the deadline", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	spendAt(t, store, "Food", "70", "other category", midMar)

	list, err := s.List(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %+v, %v", list, err)
	}
	p := list[0]
	if p.Goal.ID != g.Goal.ID {
		t.Fatalf("goal = %+v", p.Goal)
	}
	if !p.Progress.Equal(dec("250")) || !p.Remaining.Equal(dec("50")) || p.Achieved {
		t.Errorf("progress %s remaining %s achieved %v, want 250 50 false", p.Progress, p.Remaining, p.Achieved)
	}

	spendAt(t, store, "Travel", "80", "top up", time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	p, err = s.Progress(ctx, p.Goal)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if !p.Achieved || !p.Remaining.Equal(dec("-30")) {
		t.Errorf("progress %s remaining %s achieved %v, want achieved with -30", p.Progress, p.Remaining, p.Achieved)
	}
}

func TestGoalService_ListHidesExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestGoalService(memory.New())
	create := func(title string, deadline time.Time) {
		t.Helper()
		in := GoalInput{Title: title, Category: "Travel", Target: dec("10"), Deadline: deadline}
		if _, err := s.Create(ctx, "u1", in); err != nil {
			t.Fatalf("Create(%s) error = %v", title, err)
		}
	}
	create("expired", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	create("grace", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC))
	create("future", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	list, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Goal.Title != "grace" || list[1].Goal.Title != "future" {
		t.Fatalf("List() = %+v", list)
	}
}

func TestGoalService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestGoalService(memory.New())
	in := GoalInput{Title: "Car", Category: "Transport", Target: dec("1000"), Deadline: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)}
	g, err := s.Create(ctx, "u1", in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	in.Target = dec("1200.005")
	got, err := s.Update(ctx, "u1", g.Goal.ID, in)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got.Goal.Target.Equal(dec("1200.01")) || !got.Goal.CreatedAt.Equal(midMar) {
		t.Errorf("updated goal = %+v", got.Goal)
	}
	if _, err := s.Update(ctx, "u2", g.Goal.ID, in); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update() by another user error = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, "u1", g.Goal.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "u1", g.Goal.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
