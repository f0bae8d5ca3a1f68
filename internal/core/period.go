package core

import (
	"fmt"
	"time"
)

// Period is a calendar month in UTC. Both budget evaluation and monthly
// summaries use it, so the two never disagree on what "this month" means.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses a "YYYY-MM" key. The empty string yields the zero Period.
func ParsePeriod(key string) (Period, error) {
	if key == "" {
		return Period{}, nil
	}
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", key, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Key returns "YYYY-MM", or "" for the zero Period.
func (p Period) Key() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) String() string { return p.Key() }

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// Start is the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following period (exclusive bound).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && t.Before(p.End())
}

func (p Period) Next() Period {
	return PeriodOf(p.End())
}
