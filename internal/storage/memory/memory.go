// Package memory is a process-local Store used in tests and for quick local
// runs. Every operation holds a single mutex, so compound steps such as
// check-and-insert are atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"finwatch/internal/core"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu            sync.Mutex
	entries       []core.LedgerEntry
	keys          map[string]struct{}
	budgets       map[string]core.Budget
	goals         map[string]core.Goal
	notifications []core.Notification
}

func New() *Store {
	return &Store{
		keys:    map[string]struct{}{},
		budgets: map[string]core.Budget{},
		goals:   map[string]core.Goal{},
	}
}

func (s *Store) Close() error { return nil }

func entryKey(userID, dedupKey string) string {
	return userID + "\x1f" + dedupKey
}

func (s *Store) InsertIfAbsent(_ context.Context, e core.LedgerEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entryKey(e.UserID, e.DedupKey)
	if _, ok := s.keys[k]; ok {
		return false, nil
	}
	s.keys[k] = struct{}{}
	s.entries = append(s.entries, e)
	return true, nil
}

func (s *Store) GetEntry(_ context.Context, userID, id string) (core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id && e.UserID == userID {
			return e, nil
		}
	}
	return core.LedgerEntry{}, core.ErrNotFound
}

func (s *Store) UpdateEntry(_ context.Context, e core.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.entries {
		if cur.ID == e.ID && cur.UserID == e.UserID {
			cur.Category = e.Category
			cur.Amount = e.Amount
			cur.Description = e.Description
			s.entries[i] = cur
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) ListEntries(_ context.Context, userID string, from, to time.Time) ([]core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range s.entries {
		if e.UserID == userID && inRange(e.OccurredAt, from, to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (s *Store) SumByCategory(_ context.Context, userID, category string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, e := range s.entries {
		if e.UserID == userID && core.SameCategory(e.Category, category) && inRange(e.OccurredAt, from, to) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (s *Store) SumSince(_ context.Context, userID string, from, until, recordedBefore time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, e := range s.entries {
		if e.UserID != userID || e.OccurredAt.Before(from) || e.OccurredAt.After(until) {
			continue
		}
		if e.RecordedAt.After(recordedBefore) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

func (s *Store) CategoryTotals(_ context.Context, userID string, from, to time.Time) ([]core.CategoryAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Group case-insensitively, keeping the first spelling seen.
	idx := map[string]int{}
	var out []core.CategoryAmount
	for _, e := range s.entries {
		if e.UserID != userID || !inRange(e.OccurredAt, from, to) {
			continue
		}
		k := lower(e.Category)
		i, ok := idx[k]
		if !ok {
			idx[k] = len(out)
			out = append(out, core.CategoryAmount{Category: e.Category, Amount: e.Amount})
			continue
		}
		out[i].Amount = out[i].Amount.Add(e.Amount)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	return out, nil
}

func (s *Store) MonthlyTotals(_ context.Context, userID string) ([]core.MonthAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := map[core.Period]decimal.Decimal{}
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		p := core.PeriodOf(e.OccurredAt)
		totals[p] = totals[p].Add(e.Amount)
	}
	out := make([]core.MonthAmount, 0, len(totals))
	for p, amt := range totals {
		out = append(out, core.MonthAmount{Period: p, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Key() < out[j].Period.Key() })
	return out, nil
}

func (s *Store) ListUsers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, e := range s.entries {
		seen[e.UserID] = struct{}{}
	}
	for _, b := range s.budgets {
		seen[b.UserID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasCategoryLocked(b.UserID, b.Category, "") {
		return core.ErrDuplicateBudget
	}
	s.budgets[b.ID] = b
	return nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.budgets[b.ID]
	if !ok || cur.UserID != b.UserID {
		return core.ErrNotFound
	}
	if s.hasCategoryLocked(b.UserID, b.Category, b.ID) {
		return core.ErrDuplicateBudget
	}
	cur.Category = b.Category
	cur.Limit = b.Limit
	s.budgets[b.ID] = cur
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.budgets[id]
	if !ok || cur.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}

func (s *Store) GetBudget(_ context.Context, userID, id string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserID != userID {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, userID string) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lower(out[i].Category) < lower(out[j].Category) })
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g
	return nil
}

func (s *Store) UpdateGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[g.ID]
	if !ok || cur.UserID != g.UserID {
		return core.ErrNotFound
	}
	cur.Title = g.Title
	cur.Category = g.Category
	cur.Target = g.Target
	cur.Deadline = g.Deadline
	s.goals[g.ID] = cur
	return nil
}

func (s *Store) DeleteGoal(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[id]
	if !ok || cur.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.goals, id)
	return nil
}

func (s *Store) GetGoal(_ context.Context, userID, id string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return core.Goal{}, core.ErrNotFound
	}
	return g, nil
}

func (s *Store) ListGoals(_ context.Context, userID string, since time.Time) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Goal
	for _, g := range s.goals {
		if g.UserID == userID && !g.Deadline.Before(since) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SetNotifiedFlag(_ context.Context, budgetID string, p core.Period, notified bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[budgetID]
	if !ok {
		return false, core.ErrNotFound
	}
	if b.NotifiedIn(p) == notified {
		return false, nil
	}
	b.NotifiedForCurrentPeriod = notified
	b.NotifiedPeriod = p
	if !notified {
		b.NotifiedPeriod = core.Period{}
	}
	s.budgets[budgetID] = b
	return true, nil
}

func (s *Store) ResetStaleFlags(_ context.Context, current core.Period) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, b := range s.budgets {
		if b.NotifiedForCurrentPeriod && b.NotifiedPeriod != current {
			b.NotifiedForCurrentPeriod = false
			b.NotifiedPeriod = core.Period{}
			s.budgets[id] = b
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertNotification(_ context.Context, n core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications[i].IsRead = true
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) hasCategoryLocked(userID, category, exceptID string) bool {
	for id, b := range s.budgets {
		if id != exceptID && b.UserID == userID && core.SameCategory(b.Category, category) {
			return true
		}
	}
	return false
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
