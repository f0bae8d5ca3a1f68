package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceBank   EntrySource = "bank"
	SourceManual EntrySource = "manual"
)

const (
	KindBudgetAlert    NotificationKind = "budget_alert"
	KindMonthlySummary NotificationKind = "monthly_summary"
)

const maxDescriptionLen = 500

type (
	EntrySource      string
	NotificationKind string

	// RawTransaction is one item as delivered by the banking collaborator or
	// typed in by the user, before it has been validated or keyed.
	RawTransaction struct {
		Description string
		Category    string
		Amount      decimal.Decimal
		OccurredAt  time.Time
	}

	LedgerEntry struct {
		ID          string
		UserID      string
		Category    string
		Amount      decimal.Decimal
		Description string
		OccurredAt  time.Time
		DedupKey    string
		Source      EntrySource
		RecordedAt  time.Time
	}

	// Amendment carries an explicit user correction. Nil fields are left as is.
	Amendment struct {
		Category    *string
		Amount      *decimal.Decimal
		Description *string
	}

	Budget struct {
		ID       string
		UserID   string
		Category string
		Limit    decimal.Decimal

		// NotifiedForCurrentPeriod is only meaningful together with
		// NotifiedPeriod: a flag raised in an earlier period counts as clear.
		NotifiedForCurrentPeriod bool
		NotifiedPeriod           Period
		CreatedAt                time.Time
	}

	Notification struct {
		ID        string
		UserID    string
		Kind      NotificationKind
		Message   string
		CreatedAt time.Time
		IsRead    bool
	}
)

// Validate checks a raw item before it is keyed and committed.
func (t RawTransaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if t.OccurredAt.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Normalized returns a copy with trimmed text, UTC time and a cent-rounded amount.
func (t RawTransaction) Normalized() RawTransaction {
	return RawTransaction{
		Description: strings.TrimSpace(t.Description),
		Category:    NormalizeCategory(t.Category),
		Amount:      RoundCents(t.Amount),
		OccurredAt:  t.OccurredAt.UTC(),
	}
}

// NotifiedIn reports whether the threshold alert was already raised for p.
func (b Budget) NotifiedIn(p Period) bool {
	return b.NotifiedForCurrentPeriod && b.NotifiedPeriod == p
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if !b.Limit.IsPositive() {
		return ErrInvalidLimit
	}
	return nil
}

// Validate checks that at least one field is set and every set field is valid.
func (a Amendment) Validate() error {
	if a.Category == nil && a.Amount == nil && a.Description == nil {
		return ErrEmptyAmendment
	}
	if a.Category != nil && strings.TrimSpace(*a.Category) == "" {
		return ErrEmptyCategory
	}
	if a.Description != nil {
		if strings.TrimSpace(*a.Description) == "" {
			return ErrEmptyDescription
		}
		if len(*a.Description) > maxDescriptionLen {
			return ErrDescriptionTooLong
		}
	}
	if a.Amount != nil {
		if err := ValidateAmount(*a.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns e with the amendment's fields applied.
func (a Amendment) Apply(e LedgerEntry) LedgerEntry {
	if a.Category != nil {
		e.Category = NormalizeCategory(*a.Category)
	}
	if a.Amount != nil {
		e.Amount = RoundCents(*a.Amount)
	}
	if a.Description != nil {
		e.Description = strings.TrimSpace(*a.Description)
	}
	return e
}

// NormalizeCategory trims a category name; matching is case-insensitive.
func NormalizeCategory(c string) string {
	return strings.TrimSpace(c)
}

// SameCategory compares category names the way budgets are matched.
func SameCategory(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
