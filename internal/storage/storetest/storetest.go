// Package storetest holds behaviour checks shared by every storage.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.Store

var (
	march = core.Period{Year: 2024, Month: time.March}
	day1  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

// Run exercises the full Store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertIfAbsent", func(t *testing.T) { testInsertIfAbsent(t, newStore(t)) })
	t.Run("ConcurrentInsert", func(t *testing.T) { testConcurrentInsert(t, newStore(t)) })
	t.Run("Sums", func(t *testing.T) { testSums(t, newStore(t)) })
	t.Run("UpdateEntry", func(t *testing.T) { testUpdateEntry(t, newStore(t)) })
	t.Run("Reports", func(t *testing.T) { testReports(t, newStore(t)) })
	t.Run("Budgets", func(t *testing.T) { testBudgets(t, newStore(t)) })
	t.Run("Goals", func(t *testing.T) { testGoals(t, newStore(t)) })
	t.Run("NotifiedFlagCAS", func(t *testing.T) { testNotifiedFlag(t, newStore(t)) })
	t.Run("ConcurrentCAS", func(t *testing.T) { testConcurrentCAS(t, newStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Entry builds a bank entry keyed like the ingestor would key it.
func Entry(user, category, amount, desc string, at time.Time) core.LedgerEntry {
	raw := core.RawTransaction{Description: desc, Category: category, Amount: amt(amount), OccurredAt: at}
	return core.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      user,
		Category:    category,
		Amount:      amt(amount),
		Description: desc,
		OccurredAt:  at.UTC(),
		DedupKey:    core.DedupKey(user, raw),
		Source:      core.SourceBank,
		RecordedAt:  at.UTC(),
	}
}

func mustInsert(t *testing.T, s storage.Store, e core.LedgerEntry) {
	t.Helper()
	ok, err := s.InsertIfAbsent(context.Background(), e)
	if err != nil || !ok {
		t.Fatalf("insert %s: inserted=%v err=%v", e.Description, ok, err)
	}
}

func mustBudget(t *testing.T, s storage.Store, user, category, limit string) core.Budget {
	t.Helper()
	b := core.Budget{ID: uuid.NewString(), UserID: user, Category: category, Limit: amt(limit), CreatedAt: day1}
	if err := s.CreateBudget(context.Background(), b); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	return b
}

func testInsertIfAbsent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := Entry("u1", "Food", "42.00", "Groceries", day1)
	mustInsert(t, s, e)

	dup := e
	dup.ID = uuid.NewString()
	ok, err := s.InsertIfAbsent(ctx, dup)
	if err != nil || ok {
		t.Fatalf("duplicate insert: inserted=%v err=%v", ok, err)
	}

	// Same key for another user is a different entry.
	other := Entry("u2", "Food", "42.00", "Groceries", day1)
	mustInsert(t, s, other)

	got, err := s.GetEntry(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !got.Amount.Equal(e.Amount) || got.DedupKey != e.DedupKey || !got.OccurredAt.Equal(e.OccurredAt) || got.Source != core.SourceBank {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if _, err := s.GetEntry(ctx, "u2", e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("entries are scoped per user, got %v", err)
	}
}

func testConcurrentInsert(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := Entry("u1", "Food", "10.00", "Coffee", day1)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := e
			c.ID = uuid.NewString()
			ok, err := s.InsertIfAbsent(ctx, c)
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one insert, got %d", wins.Load())
	}
}

func testSums(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, Entry("u1", "Food", "30.00", "a", day1))
	mustInsert(t, s, Entry("u1", "food ", "20.50", "b", day1.AddDate(0, 0, 3)))
	mustInsert(t, s, Entry("u1", "Travel", "100.00", "c", day1.AddDate(0, 0, 4)))
	mustInsert(t, s, Entry("u1", "Food", "99.00", "previous month", day1.AddDate(0, 0, -2)))
	mustInsert(t, s, Entry("u2", "Food", "5.00", "other user", day1))

	got, err := s.SumByCategory(ctx, "u1", "FOOD", march.Start(), march.End())
	if err != nil || !got.Equal(amt("50.50")) {
		t.Fatalf("SumByCategory = %s, %v; want 50.50", got, err)
	}

	// Entry recorded after the cut-off is excluded.
	late := Entry("u1", "Food", "7.00", "late", day1.AddDate(0, 0, 5))
	late.RecordedAt = day1.AddDate(0, 0, 20)
	mustInsert(t, s, late)

	now := day1.AddDate(0, 0, 10)
	got, err = s.SumSince(ctx, "u1", march.Start(), now, now)
	if err != nil || !got.Equal(amt("150.50")) {
		t.Fatalf("SumSince = %s, %v; want 150.50", got, err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil || len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("ListUsers = %v, %v", users, err)
	}
}

func testUpdateEntry(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := Entry("u1", "Food", "12.00", "Lunch", day1)
	mustInsert(t, s, e)

	e.Category = "Work"
	e.Amount = amt("13.50")
	e.Description = "Team lunch"
	if err := s.UpdateEntry(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetEntry(ctx, "u1", e.ID)
	if err != nil || got.Category != "Work" || !got.Amount.Equal(amt("13.50")) || got.Description != "Team lunch" {
		t.Fatalf("after update: %+v, %v", got, err)
	}

	missing := e
	missing.ID = uuid.NewString()
	if err := s.UpdateEntry(ctx, missing); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testReports(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, Entry("u1", "Food", "30.00", "a", day1))
	mustInsert(t, s, Entry("u1", "Travel", "100.00", "b", day1.AddDate(0, 0, 1)))
	mustInsert(t, s, Entry("u1", "Food", "10.00", "c", day1.AddDate(0, 0, 2)))
	mustInsert(t, s, Entry("u1", "Food", "5.00", "d", day1.AddDate(0, 1, 0)))

	totals, err := s.CategoryTotals(ctx, "u1", march.Start(), march.End())
	if err != nil || len(totals) != 2 {
		t.Fatalf("CategoryTotals = %+v, %v", totals, err)
	}
	if totals[0].Category != "Travel" || !totals[0].Amount.Equal(amt("100")) || !totals[1].Amount.Equal(amt("40")) {
		t.Fatalf("CategoryTotals order/amounts wrong: %+v", totals)
	}

	months, err := s.MonthlyTotals(ctx, "u1")
	if err != nil || len(months) != 2 {
		t.Fatalf("MonthlyTotals = %+v, %v", months, err)
	}
	if months[0].Period != march || !months[0].Amount.Equal(amt("140")) || months[1].Period != march.Next() {
		t.Fatalf("MonthlyTotals wrong: %+v", months)
	}

	entries, err := s.ListEntries(ctx, "u1", march.Start(), march.End())
	if err != nil || len(entries) != 3 || entries[0].Description != "c" {
		t.Fatalf("ListEntries = %+v, %v", entries, err)
	}
}

func testBudgets(t *testing.T, s storage.Store) {
	ctx := context.Background()
	b := mustBudget(t, s, "u1", "Food", "100")
	mustBudget(t, s, "u1", "Travel", "300")
	mustBudget(t, s, "u2", "Food", "50")

	dup := core.Budget{ID: uuid.NewString(), UserID: "u1", Category: "FOOD", Limit: amt("1")}
	if err := s.CreateBudget(ctx, dup); !errors.Is(err, core.ErrDuplicateBudget) {
		t.Fatalf("expected ErrDuplicateBudget, got %v", err)
	}

	list, err := s.ListBudgets(ctx, "u1")
	if err != nil || len(list) != 2 || list[0].Category != "Food" || !list[0].Limit.Equal(amt("100")) {
		t.Fatalf("ListBudgets = %+v, %v", list, err)
	}

	b.Limit = amt("120.25")
	if err := s.UpdateBudget(ctx, b); err != nil {
		t.Fatalf("update budget: %v", err)
	}
	got, err := s.GetBudget(ctx, "u1", b.ID)
	if err != nil || !got.Limit.Equal(amt("120.25")) {
		t.Fatalf("GetBudget = %+v, %v", got, err)
	}
	if _, err := s.GetBudget(ctx, "u2", b.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("budgets are scoped per user, got %v", err)
	}

	if err := s.DeleteBudget(ctx, "u1", b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteBudget(ctx, "u1", b.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func testGoals(t *testing.T, s storage.Store) {
	ctx := context.Background()
	newGoal := func(user, title string, deadline time.Time) core.Goal {
		g := core.Goal{
			ID:        uuid.NewString(),
			UserID:    user,
			Title:     title,
			Category:  "Travel",
			Target:    amt("500"),
			Deadline:  deadline,
			CreatedAt: day1,
		}
		if err := s.CreateGoal(ctx, g); err != nil {
			t.Fatalf("create goal: %v", err)
		}
		return g
	}
	april := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	g := newGoal("u1", "Summer", june)
	newGoal("u1", "Spring", april)
	newGoal("u1", "Old", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	newGoal("u2", "Other", june)

	list, err := s.ListGoals(ctx, "u1", day1)
	if err != nil || len(list) != 2 || list[0].Title != "Spring" || list[1].Title != "Summer" {
		t.Fatalf("ListGoals = %+v, %v", list, err)
	}
	if !list[1].Deadline.Equal(june) || !list[1].Target.Equal(amt("500")) || !list[1].CreatedAt.Equal(day1) {
		t.Fatalf("goal did not round-trip: %+v", list[1])
	}

	g.Title = "Summer trip"
	g.Target = amt("650.50")
	g.Deadline = april
	if err := s.UpdateGoal(ctx, g); err != nil {
		t.Fatalf("update goal: %v", err)
	}
	got, err := s.GetGoal(ctx, "u1", g.ID)
	if err != nil || got.Title != "Summer trip" || !got.Target.Equal(amt("650.50")) || !got.Deadline.Equal(april) {
		t.Fatalf("GetGoal = %+v, %v", got, err)
	}
	if _, err := s.GetGoal(ctx, "u2", g.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("goals are scoped per user, got %v", err)
	}
	other := g
	other.UserID = "u2"
	if err := s.UpdateGoal(ctx, other); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update by another user: expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteGoal(ctx, "u1", g.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteGoal(ctx, "u1", g.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func testNotifiedFlag(t *testing.T, s storage.Store) {
	ctx := context.Background()
	b := mustBudget(t, s, "u1", "Food", "100")

	changed, err := s.SetNotifiedFlag(ctx, b.ID, march, true)
	if err != nil || !changed {
		t.Fatalf("first set: changed=%v err=%v", changed, err)
	}
	changed, err = s.SetNotifiedFlag(ctx, b.ID, march, true)
	if err != nil || changed {
		t.Fatalf("second set in same period must not change, changed=%v err=%v", changed, err)
	}

	got, _ := s.GetBudget(ctx, "u1", b.ID)
	if !got.NotifiedIn(march) {
		t.Fatalf("expected flag for March, got %+v", got)
	}

	// A flag left over from March counts as clear in April.
	changed, err = s.SetNotifiedFlag(ctx, b.ID, march.Next(), true)
	if err != nil || !changed {
		t.Fatalf("set in next period: changed=%v err=%v", changed, err)
	}

	n, err := s.ResetStaleFlags(ctx, march.Next())
	if err != nil || n != 0 {
		t.Fatalf("nothing stale for April, got n=%d err=%v", n, err)
	}
	n, err = s.ResetStaleFlags(ctx, march.Next().Next())
	if err != nil || n != 1 {
		t.Fatalf("April flag is stale in May, got n=%d err=%v", n, err)
	}
	got, _ = s.GetBudget(ctx, "u1", b.ID)
	if got.NotifiedForCurrentPeriod {
		t.Fatalf("flag should be cleared, got %+v", got)
	}

	if _, err := s.SetNotifiedFlag(ctx, b.ID, march, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	changed, err = s.SetNotifiedFlag(ctx, b.ID, march, false)
	if err != nil || !changed {
		t.Fatalf("clear: changed=%v err=%v", changed, err)
	}
}

func testConcurrentCAS(t *testing.T, s storage.Store) {
	ctx := context.Background()
	b := mustBudget(t, s, "u1", "Food", "100")
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetNotifiedFlag(ctx, b.ID, march, true)
			if err != nil {
				t.Errorf("cas: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", wins.Load())
	}
}

func testNotifications(t *testing.T, s storage.Store) {
	ctx := context.Background()
	first := core.Notification{ID: uuid.NewString(), UserID: "u1", Kind: core.KindBudgetAlert, Message: "first", CreatedAt: day1}
	second := core.Notification{ID: uuid.NewString(), UserID: "u1", Kind: core.KindMonthlySummary, Message: "second", CreatedAt: day1.Add(time.Hour)}
	for _, n := range []core.Notification{first, second} {
		if err := s.InsertNotification(ctx, n); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
	}

	list, err := s.ListNotifications(ctx, "u1", false)
	if err != nil || len(list) != 2 || list[0].Message != "second" || list[1].Kind != core.KindBudgetAlert {
		t.Fatalf("ListNotifications = %+v, %v", list, err)
	}

	if err := s.MarkRead(ctx, "u1", first.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err := s.ListNotifications(ctx, "u1", true)
	if err != nil || len(unread) != 1 || unread[0].ID != second.ID {
		t.Fatalf("unread = %+v, %v", unread, err)
	}
	if err := s.MarkRead(ctx, "u2", second.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's notification, got %v", err)
	}
}
