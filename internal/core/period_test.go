package core

import (
	"testing"
	"time"
)

func TestPeriodOf(t *testing.T) {
	p := PeriodOf(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC))
	if p.Key() != "2024-03" {
		t.Fatalf("Key = %q", p.Key())
	}
	if !p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("start is inside the period")
	}
	if p.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("end is exclusive")
	}
	if p.Next().Key() != "2024-04" {
		t.Fatalf("Next = %q", p.Next().Key())
	}
	if (Period{Year: 2024, Month: time.December}).Next().Key() != "2025-01" {
		t.Fatal("december rolls into january")
	}
}

func TestPeriodOfUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	// 00:30 on April 1st at UTC+2 is still March in UTC.
	p := PeriodOf(time.Date(2024, 4, 1, 0, 30, 0, 0, loc))
	if p.Key() != "2024-03" {
		t.Fatalf("Key = %q, want 2024-03", p.Key())
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-11")
	if err != nil || p.Year != 2024 || p.Month != time.November {
		t.Fatalf("ParsePeriod = %+v, %v", p, err)
	}
	if p, err := ParsePeriod(""); err != nil || !p.IsZero() || p.Key() != "" {
		t.Fatalf("empty key should be the zero period, got %+v %v", p, err)
	}
	if _, err := ParsePeriod("2024/11"); err == nil {
		t.Fatal("expected error")
	}
}
