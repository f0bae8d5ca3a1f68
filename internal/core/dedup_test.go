package core

import (
	"strings"
	"testing"
	"time"
)

func TestDedupKey(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	base := RawTransaction{Description: "Groceries", Category: "Food", Amount: amount("42.00"), OccurredAt: day}

	k := DedupKey("u1", base)
	if len(k) != 64 {
		t.Fatalf("expected hex sha256, got %q", k)
	}

	same := base
	same.Description = "  groceries "
	same.Category = "Other" // category is not part of the identity
	same.Amount = amount("42")
	same.OccurredAt = day.In(time.FixedZone("X", 3600))
	if DedupKey("u1", same) != k {
		t.Fatal("normalised variants of the same transaction must share a key")
	}

	tests := []struct {
		name string
		user string
		mut  func(*RawTransaction)
	}{
		{"different amount", "u1", func(r *RawTransaction) { r.Amount = amount("42.01") }},
		{"different date", "u1", func(r *RawTransaction) { r.OccurredAt = day.AddDate(0, 0, 1) }},
		{"different description", "u1", func(r *RawTransaction) { r.Description = "Grocery" }},
		{"different user", "u2", func(r *RawTransaction) {}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := base
			tc.mut(&r)
			if DedupKey(tc.user, r) == k {
				t.Fatal("expected a different key")
			}
		})
	}
}

func TestManualKeyUnique(t *testing.T) {
	a, b := ManualKey(), ManualKey()
	if a == b || !strings.HasPrefix(a, "manual:") {
		t.Fatalf("unexpected manual keys %q %q", a, b)
	}
}

func TestNormalizeDescription(t *testing.T) {
	if got := NormalizeDescription("  Coffee   SHOP\tNYC "); got != "coffee shop nyc" {
		t.Fatalf("got %q", got)
	}
}
