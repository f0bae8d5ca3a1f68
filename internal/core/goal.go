package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxTitleLen = 200

// Goal is a savings target for one category, tracked until Deadline.
// Deadline is a calendar day (UTC midnight); the whole day counts.
type Goal struct {
	ID        string
	UserID    string
	Title     string
	Category  string
	Target    decimal.Decimal
	Deadline  time.Time
	CreatedAt time.Time
}

// GoalProgress is a goal with the spend recorded against it so far.
type GoalProgress struct {
	Goal      Goal
	Progress  decimal.Decimal
	Remaining decimal.Decimal // target - progress, may be negative
	Achieved  bool
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if len(g.Title) > maxTitleLen {
		return ErrTitleTooLong
	}
	if strings.TrimSpace(g.Category) == "" {
		return ErrEmptyCategory
	}
	if !g.Target.IsPositive() {
		return ErrInvalidTarget
	}
	if g.Deadline.IsZero() {
		return ErrZeroDeadline
	}
	return nil
}

// Window is the [from, to) range of OccurredAt counted towards the goal:
// from the day the goal was created through the end of its deadline day.
func (g Goal) Window() (from, to time.Time) {
	from = StartOfDay(g.CreatedAt)
	to = StartOfDay(g.Deadline).AddDate(0, 0, 1)
	return from, to
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
