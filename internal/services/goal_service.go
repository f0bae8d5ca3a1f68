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

// goalGrace keeps goals listed for a few days after their deadline passes.
const goalGrace = 3 * 24 * time.Hour

// GoalInput carries the user-editable fields of a goal.
type GoalInput struct {
	Title    string
	Category string
	Target   decimal.Decimal
	Deadline time.Time
}

type GoalService struct {
	goals  storage.GoalStore
	ledger storage.LedgerStore
	now    func() time.Time
}

func NewGoalService(goals storage.GoalStore, ledger storage.LedgerStore) *GoalService {
	return &GoalService{goals: goals, ledger: ledger, now: time.Now}
}

func (s *GoalService) Create(ctx context.Context, userID string, in GoalInput) (core.GoalProgress, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.GoalProgress{}, err
	}
	g := core.Goal{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	applyGoalInput(&g, in)
	if err := g.Validate(); err != nil {
		return core.GoalProgress{}, err
	}
	if err := s.goals.CreateGoal(ctx, g); err != nil {
		return core.GoalProgress{}, fmt.Errorf("create goal: %w", err)
	}
	return s.Progress(ctx, g)
}

func (s *GoalService) Update(ctx context.Context, userID, id string, in GoalInput) (core.GoalProgress, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.GoalProgress{}, err
	}
	cur, err := s.goals.GetGoal(ctx, userID, id)
	if err != nil {
		return core.GoalProgress{}, fmt.Errorf("update goal: %w", err)
	}
	applyGoalInput(&cur, in)
	if err := cur.Validate(); err != nil {
		return core.GoalProgress{}, err
	}
	if err := s.goals.UpdateGoal(ctx, cur); err != nil {
		return core.GoalProgress{}, fmt.Errorf("update goal: %w", err)
	}
	return s.Progress(ctx, cur)
}

func (s *GoalService) Delete(ctx context.Context, userID, id string) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	if err := s.goals.DeleteGoal(ctx, userID, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// List returns the user's goals whose deadline is no more than three days
// past, earliest deadline first, each with its current progress.
func (s *GoalService) List(ctx context.Context, userID string) ([]core.GoalProgress, error) {
	if err := core.RequireUser(userID); err != nil {
		return nil, err
	}
	since := core.StartOfDay(s.now().Add(-goalGrace))
	list, err := s.goals.ListGoals(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := make([]core.GoalProgress, 0, len(list))
	for _, g := range list {
		p, err := s.Progress(ctx, g)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Progress sums the goal's category over its window. Remaining is not
// clamped at zero.
func (s *GoalService) Progress(ctx context.Context, g core.Goal) (core.GoalProgress, error) {
	from, to := g.Window()
	sum, err := s.ledger.SumByCategory(ctx, g.UserID, g.Category, from, to)
	if err != nil {
		return core.GoalProgress{}, fmt.Errorf("goal progress: %w", err)
	}
	return core.GoalProgress{
		Goal:      g,
		Progress:  sum,
		Remaining: g.Target.Sub(sum),
		Achieved:  sum.GreaterThanOrEqual(g.Target),
	}, nil
}

func applyGoalInput(g *core.Goal, in GoalInput) {
	g.Title = strings.TrimSpace(in.Title)
	g.Category = core.NormalizeCategory(in.Category)
	g.Target = core.RoundCents(in.Target)
	g.Deadline = core.StartOfDay(in.Deadline)
}
