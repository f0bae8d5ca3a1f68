// Package storage defines the persistence boundary shared by every store
// implementation. Failures other than ErrNotFound are reported wrapped in
// core.ErrPersistence.
package storage

import (
	"context"
	"time"

	"finwatch/internal/core"

	"github.com/shopspring/decimal"
)

// Ports for outbound persistence adapters.
type (
	LedgerStore interface {
		// InsertIfAbsent commits e unless an entry with the same
		// (UserID, DedupKey) already exists. It reports whether a row was
		// written. The check and the insert are a single atomic step.
		InsertIfAbsent(ctx context.Context, e core.LedgerEntry) (inserted bool, err error)

		GetEntry(ctx context.Context, userID, id string) (core.LedgerEntry, error)

		// UpdateEntry rewrites category, amount and description of an existing
		// entry. The dedup key and timestamps are never changed.
		UpdateEntry(ctx context.Context, e core.LedgerEntry) error

		// ListEntries returns entries with OccurredAt in [from, to), newest first.
		ListEntries(ctx context.Context, userID string, from, to time.Time) ([]core.LedgerEntry, error)

		// SumByCategory totals entries of one category (case-insensitive) with
		// OccurredAt in [from, to).
		SumByCategory(ctx context.Context, userID, category string, from, to time.Time) (decimal.Decimal, error)

		// SumSince totals entries with OccurredAt in [from, until] that were
		// recorded no later than recordedBefore.
		SumSince(ctx context.Context, userID string, from, until, recordedBefore time.Time) (decimal.Decimal, error)

		CategoryTotals(ctx context.Context, userID string, from, to time.Time) ([]core.CategoryAmount, error)

		// MonthlyTotals returns one total per period that has entries, oldest first.
		MonthlyTotals(ctx context.Context, userID string) ([]core.MonthAmount, error)

		// ListUsers returns every user that owns entries or budgets.
		ListUsers(ctx context.Context) ([]string, error)
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) error
		UpdateBudget(ctx context.Context, b core.Budget) error
		DeleteBudget(ctx context.Context, userID, id string) error
		GetBudget(ctx context.Context, userID, id string) (core.Budget, error)
		ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)

		// SetNotifiedFlag is a compare-and-set on the budget's threshold flag
		// for period p. Setting succeeds only if the flag is not already raised
		// for p; clearing succeeds only if it is. Exactly one of several
		// concurrent callers observes changed == true.
		SetNotifiedFlag(ctx context.Context, budgetID string, p core.Period, notified bool) (changed bool, err error)

		// ResetStaleFlags clears flags raised for any period other than current.
		ResetStaleFlags(ctx context.Context, current core.Period) (int64, error)
	}

	GoalStore interface {
		CreateGoal(ctx context.Context, g core.Goal) error
		// UpdateGoal rewrites title, category, target and deadline.
		UpdateGoal(ctx context.Context, g core.Goal) error
		DeleteGoal(ctx context.Context, userID, id string) error
		GetGoal(ctx context.Context, userID, id string) (core.Goal, error)
		// ListGoals returns goals with Deadline >= since, earliest deadline first.
		ListGoals(ctx context.Context, userID string, since time.Time) ([]core.Goal, error)
	}

	NotificationStore interface {
		InsertNotification(ctx context.Context, n core.Notification) error
		ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error)
		MarkRead(ctx context.Context, userID, id string) error
	}

	// Store is the full persistence surface a backend provides.
	Store interface {
		LedgerStore
		BudgetStore
		GoalStore
		NotificationStore
		Close() error
	}
)
