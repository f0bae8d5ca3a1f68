package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRawTransactionValidate(t *testing.T) {
	good := RawTransaction{
		Description: "Groceries",
		Category:    "Food",
		Amount:      amount("42.00"),
		OccurredAt:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		name string
		mut  func(*RawTransaction)
		want error
	}{
		{"empty description", func(r *RawTransaction) { r.Description = "  " }, ErrEmptyDescription},
		{"long description", func(r *RawTransaction) { r.Description = strings.Repeat("x", 501) }, ErrDescriptionTooLong},
		{"empty category", func(r *RawTransaction) { r.Category = "" }, ErrEmptyCategory},
		{"zero amount", func(r *RawTransaction) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(r *RawTransaction) { r.Amount = amount("-3") }, ErrInvalidAmount},
		{"zero date", func(r *RawTransaction) { r.OccurredAt = time.Time{} }, ErrZeroDate},
	}
	for _, tc := range bads {
		t.Run(tc.name, func(t *testing.T) {
			r := good
			tc.mut(&r)
			err := r.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected error to be a validation error, got %v", err)
			}
		})
	}
}

func TestBudgetValidateAndNotifiedIn(t *testing.T) {
	b := Budget{Category: "Food", Limit: amount("100")}
	if err := b.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Budget{Category: "Food"}).Validate(); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}

	march := Period{Year: 2024, Month: time.March}
	b.NotifiedForCurrentPeriod = true
	b.NotifiedPeriod = march
	if !b.NotifiedIn(march) {
		t.Fatal("expected notified in March")
	}
	if b.NotifiedIn(march.Next()) {
		t.Fatal("a flag raised in March must not count for April")
	}
}

func TestAmendment(t *testing.T) {
	if err := (Amendment{}).Validate(); !errors.Is(err, ErrEmptyAmendment) {
		t.Fatalf("expected ErrEmptyAmendment, got %v", err)
	}
	neg := amount("-1")
	if err := (Amendment{Amount: &neg}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	cat := " Travel "
	amt := amount("10.005")
	e := LedgerEntry{Category: "Food", Amount: amount("5"), Description: "lunch", DedupKey: "k"}
	got := Amendment{Category: &cat, Amount: &amt}.Apply(e)
	if got.Category != "Travel" || FormatAmount(got.Amount) != "10.01" || got.Description != "lunch" {
		t.Fatalf("unexpected amended entry: %+v", got)
	}
	if got.DedupKey != "k" {
		t.Fatal("amend must not change the dedup key")
	}
}

func TestRequireUser(t *testing.T) {
	if err := RequireUser(""); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if err := RequireUser("u1"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestItemErrorUnwrap(t *testing.T) {
	err := error(&ItemError{Index: 2, Err: ErrEmptyCategory})
	if !errors.Is(err, ErrValidation) {
		t.Fatal("item error should unwrap to a validation error")
	}
	var ie *ItemError
	if !errors.As(err, &ie) || ie.Index != 2 {
		t.Fatalf("errors.As failed: %v", err)
	}
}

func TestPersistenceWrap(t *testing.T) {
	err := Persistence("insert entry", errors.New("disk full"))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if Persistence("x", nil) != nil {
		t.Fatal("nil stays nil")
	}
	if got := Persistence("x", ErrNotFound); !errors.Is(got, ErrNotFound) || errors.Is(got, ErrPersistence) {
		t.Fatalf("not found must pass through untouched, got %v", got)
	}
}
