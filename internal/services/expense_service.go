package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage"

	"github.com/google/uuid"
)

// ExpenseService records hand-entered expenses and user corrections. Every
// ledger change is followed by a budget evaluation whose failure is logged
// and never undoes the change.
type ExpenseService struct {
	ledger    storage.LedgerStore
	evaluator Evaluator
	now       func() time.Time
}

func NewExpenseService(ledger storage.LedgerStore, evaluator Evaluator) *ExpenseService {
	return &ExpenseService{
		ledger:    ledger,
		evaluator: evaluator,
		now:       time.Now,
	}
}

// Record stores a manual expense. A zero date means "now". Manual entries
// get a unique key, so two identical hand-entered expenses are both kept.
func (s *ExpenseService) Record(ctx context.Context, userID string, raw core.RawTransaction) (core.LedgerEntry, Evaluation, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.LedgerEntry{}, Evaluation{}, err
	}
	now := s.now().UTC()
	if raw.OccurredAt.IsZero() {
		raw.OccurredAt = now
	}
	if err := raw.Validate(); err != nil {
		return core.LedgerEntry{}, Evaluation{}, err
	}
	raw = raw.Normalized()

	entry := core.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Category:    raw.Category,
		Amount:      raw.Amount,
		Description: raw.Description,
		OccurredAt:  raw.OccurredAt,
		DedupKey:    core.ManualKey(),
		Source:      core.SourceManual,
		RecordedAt:  now,
	}
	if _, err := s.ledger.InsertIfAbsent(ctx, entry); err != nil {
		return core.LedgerEntry{}, Evaluation{}, fmt.Errorf("record expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense recorded",
		"component", "expense",
		"user_id", userID,
		"entry_id", entry.ID,
		"category", entry.Category,
		"amount", core.FormatAmount(entry.Amount))

	return entry, s.evaluate(ctx, userID, entry.Category), nil
}

// Amend applies a user correction to an existing entry. Both the old and the
// new category are re-evaluated when the category changes.
func (s *ExpenseService) Amend(ctx context.Context, userID, entryID string, a core.Amendment) (core.LedgerEntry, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.LedgerEntry{}, err
	}
	if err := a.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}

	cur, err := s.ledger.GetEntry(ctx, userID, entryID)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("amend expense: %w", err)
	}
	next := a.Apply(cur)
	if err := s.ledger.UpdateEntry(ctx, next); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("amend expense: %w", err)
	}

	s.evaluate(ctx, userID, next.Category)
	if !core.SameCategory(cur.Category, next.Category) {
		s.evaluate(ctx, userID, cur.Category)
	}
	return next, nil
}

// List returns the user's entries for period p, or the current period when p
// is zero.
func (s *ExpenseService) List(ctx context.Context, userID string, p core.Period) ([]core.LedgerEntry, error) {
	if err := core.RequireUser(userID); err != nil {
		return nil, err
	}
	if p.IsZero() {
		p = core.PeriodOf(s.now())
	}
	entries, err := s.ledger.ListEntries(ctx, userID, p.Start(), p.End())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return entries, nil
}

func (s *ExpenseService) evaluate(ctx context.Context, userID, category string) Evaluation {
	if s.evaluator == nil {
		return Evaluation{}
	}
	ev, err := s.evaluator.Evaluate(ctx, userID, category)
	if err != nil {
		slog.WarnContext(ctx, "Budget evaluation failed",
			"component", "expense", "user_id", userID, "category", category, "error", err)
	}
	return ev
}
