package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finwatch/internal/cache"
	"finwatch/internal/core"
	"finwatch/internal/storage"

	"github.com/shopspring/decimal"
)

// DefaultAlertThreshold is the fraction of a budget limit that, once
// exceeded, raises an alert.
var DefaultAlertThreshold = decimal.RequireFromString("0.8")

// Evaluation is the outcome of checking one category against its budget.
type Evaluation struct {
	// Found is false when the user has no budget for the category; every
	// other field is then zero.
	Found     bool
	Budget    core.Budget
	Period    core.Period
	Spent     decimal.Decimal
	Remaining decimal.Decimal // limit - spent, may be negative

	// OverThreshold reports spent > threshold * limit.
	OverThreshold bool
	// Alerted is true only for the call that raised the flag for this period.
	Alerted bool
	// AlertErr holds a failure to persist the alert. The flag stays raised.
	AlertErr error
}

// BudgetEvaluator recomputes category spend from the ledger and raises the
// threshold alert at most once per budget and period.
type BudgetEvaluator struct {
	ledger    storage.LedgerStore
	budgets   storage.BudgetStore
	notifier  Notifier
	cache     *cache.LRUCache[[]core.Budget]
	threshold decimal.Decimal
	now       func() time.Time
}

type EvaluatorOption func(*BudgetEvaluator)

// WithBudgetCache caches budget definitions per user. Spend is never cached.
func WithBudgetCache(c *cache.LRUCache[[]core.Budget]) EvaluatorOption {
	return func(e *BudgetEvaluator) { e.cache = c }
}

func WithThreshold(t decimal.Decimal) EvaluatorOption {
	return func(e *BudgetEvaluator) {
		if t.IsPositive() {
			e.threshold = t
		}
	}
}

func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *BudgetEvaluator) { e.now = now }
}

func NewBudgetEvaluator(ledger storage.LedgerStore, budgets storage.BudgetStore, notifier Notifier, opts ...EvaluatorOption) *BudgetEvaluator {
	e := &BudgetEvaluator{
		ledger:    ledger,
		budgets:   budgets,
		notifier:  notifier,
		threshold: DefaultAlertThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks the user's budget for category in the current period. A
// missing budget is not an error. The returned error covers lookup and sum
// failures only; a lost alert is reported on Evaluation.AlertErr.
func (e *BudgetEvaluator) Evaluate(ctx context.Context, userID, category string) (Evaluation, error) {
	if err := core.RequireUser(userID); err != nil {
		return Evaluation{}, err
	}

	budget, found, err := e.findBudget(ctx, userID, category)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate budget: %w", err)
	}
	if !found {
		return Evaluation{}, nil
	}

	period := core.PeriodOf(e.now())
	spent, err := e.ledger.SumByCategory(ctx, userID, budget.Category, period.Start(), period.End())
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate budget: %w", err)
	}

	ev := Evaluation{
		Found:         true,
		Budget:        budget,
		Period:        period,
		Spent:         spent,
		Remaining:     budget.Limit.Sub(spent),
		OverThreshold: spent.GreaterThan(budget.Limit.Mul(e.threshold)),
	}
	if !ev.OverThreshold || budget.NotifiedIn(period) {
		return ev, nil
	}

	won, err := e.budgets.SetNotifiedFlag(ctx, budget.ID, period, true)
	if err != nil {
		return ev, fmt.Errorf("raise budget flag: %w", err)
	}
	if !won {
		// Another writer already alerted for this period.
		return ev, nil
	}
	ev.Alerted = true

	if _, err := e.notifier.Enqueue(ctx, userID, core.KindBudgetAlert, AlertMessage(budget, spent, e.threshold, period)); err != nil {
		ev.AlertErr = err
		slog.ErrorContext(ctx, "Budget alert lost",
			"component", "budget",
			"user_id", userID,
			"budget_id", budget.ID,
			"period", period.Key(),
			"error", err)
		return ev, nil
	}

	slog.InfoContext(ctx, "Budget threshold crossed",
		"component", "budget",
		"user_id", userID,
		"category", budget.Category,
		"spent", core.FormatAmount(spent),
		"limit", core.FormatAmount(budget.Limit),
		"period", period.Key())
	return ev, nil
}

// Invalidate drops cached budget definitions for a user.
func (e *BudgetEvaluator) Invalidate(userID string) {
	if e.cache != nil {
		e.cache.Delete(userID)
	}
}

// findBudget matches category against the user's budgets. A cached copy may
// carry an outdated flag; that only costs a lost CAS, never a second alert.
func (e *BudgetEvaluator) findBudget(ctx context.Context, userID, category string) (core.Budget, bool, error) {
	list, err := e.listBudgets(ctx, userID)
	if err != nil {
		return core.Budget{}, false, err
	}
	for _, b := range list {
		if core.SameCategory(b.Category, category) {
			return b, true, nil
		}
	}
	return core.Budget{}, false, nil
}

func (e *BudgetEvaluator) listBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	if e.cache == nil {
		return e.budgets.ListBudgets(ctx, userID)
	}
	return e.cache.GetOrLoad(userID, func() ([]core.Budget, error) {
		return e.budgets.ListBudgets(ctx, userID)
	})
}

// AlertMessage renders the threshold alert text, e.g.
// "You have spent more than 80% of your budget for Food (90.00 of 100.00) in 2024-03."
func AlertMessage(b core.Budget, spent, threshold decimal.Decimal, p core.Period) string {
	return fmt.Sprintf("You have spent more than %s%% of your budget for %s (%s of %s) in %s.",
		threshold.Shift(2).String(), b.Category, core.FormatAmount(spent), core.FormatAmount(b.Limit), p.Key())
}
