package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetCache is invalidated on every budget write.
type BudgetCache interface {
	Invalidate(userID string)
}

type BudgetService struct {
	budgets storage.BudgetStore
	ledger  storage.LedgerStore
	cache   BudgetCache
	now     func() time.Time
}

// NewBudgetService wires a budget service. cache may be nil.
func NewBudgetService(budgets storage.BudgetStore, ledger storage.LedgerStore, cache BudgetCache) *BudgetService {
	return &BudgetService{
		budgets: budgets,
		ledger:  ledger,
		cache:   cache,
		now:     time.Now,
	}
}

func (s *BudgetService) Create(ctx context.Context, userID, category string, limit decimal.Decimal) (core.Budget, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{
		ID:        uuid.NewString(),
		UserID:    userID,
		Category:  core.NormalizeCategory(category),
		Limit:     core.RoundCents(limit),
		CreatedAt: s.now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.budgets.CreateBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	s.invalidate(userID)
	return b, nil
}

// Update changes a budget's category and limit. The threshold flag is kept.
func (s *BudgetService) Update(ctx context.Context, userID, id, category string, limit decimal.Decimal) (core.Budget, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.Budget{}, err
	}
	cur, err := s.budgets.GetBudget(ctx, userID, id)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	cur.Category = core.NormalizeCategory(category)
	cur.Limit = core.RoundCents(limit)
	if err := cur.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.budgets.UpdateBudget(ctx, cur); err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	s.invalidate(userID)
	return cur, nil
}

func (s *BudgetService) Delete(ctx context.Context, userID, id string) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	if err := s.budgets.DeleteBudget(ctx, userID, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// List returns the user's budgets, optionally only those whose category
// contains filter (case-insensitive).
func (s *BudgetService) List(ctx context.Context, userID, filter string) ([]core.Budget, error) {
	if err := core.RequireUser(userID); err != nil {
		return nil, err
	}
	list, err := s.budgets.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return list, nil
	}
	out := list[:0]
	for _, b := range list {
		if strings.Contains(strings.ToLower(b.Category), filter) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Performance reports spent and remaining for every budget in the current
// period. Remaining is not clamped at zero.
func (s *BudgetService) Performance(ctx context.Context, userID string) ([]core.BudgetStatus, error) {
	list, err := s.List(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	period := core.PeriodOf(s.now())
	out := make([]core.BudgetStatus, 0, len(list))
	for _, b := range list {
		spent, err := s.ledger.SumByCategory(ctx, userID, b.Category, period.Start(), period.End())
		if err != nil {
			return nil, fmt.Errorf("budget performance: %w", err)
		}
		out = append(out, core.BudgetStatus{
			Budget:    b,
			Period:    period,
			Spent:     spent,
			Remaining: b.Limit.Sub(spent),
		})
	}
	return out, nil
}

func (s *BudgetService) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
