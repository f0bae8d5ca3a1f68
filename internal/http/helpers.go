package http

import (
	"time"

	"finwatch/internal/core"
	"finwatch/internal/services"
)

// JSON representations. Amounts are decimal strings with two places.
type (
	entryJSON struct {
		ID          string    `json:"id"`
		Category    string    `json:"category"`
		Amount      string    `json:"amount"`
		Description string    `json:"description"`
		OccurredAt  time.Time `json:"occurred_at"`
		Source      string    `json:"source"`
		RecordedAt  time.Time `json:"recorded_at"`
	}

	evaluationJSON struct {
		Found         bool   `json:"found"`
		Period        string `json:"period,omitempty"`
		Spent         string `json:"spent,omitempty"`
		Remaining     string `json:"remaining,omitempty"`
		OverThreshold bool   `json:"over_threshold"`
		Alerted       bool   `json:"alerted"`
	}

	budgetJSON struct {
		ID                       string    `json:"id"`
		Category                 string    `json:"category"`
		Limit                    string    `json:"limit"`
		NotifiedForCurrentPeriod bool      `json:"notified_for_current_period"`
		CreatedAt                time.Time `json:"created_at"`
	}

	budgetStatusJSON struct {
		budgetJSON
		Period    string `json:"period"`
		Spent     string `json:"spent"`
		Remaining string `json:"remaining"`
	}

	goalJSON struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Category  string    `json:"category"`
		Target    string    `json:"target"`
		Deadline  string    `json:"deadline"`
		CreatedAt time.Time `json:"created_at"`
		Progress  string    `json:"progress"`
		Remaining string    `json:"remaining"`
		Achieved  bool      `json:"achieved"`
	}

	notificationJSON struct {
		ID        string    `json:"id"`
		Kind      string    `json:"kind"`
		Message   string    `json:"message"`
		CreatedAt time.Time `json:"created_at"`
		IsRead    bool      `json:"is_read"`
	}

	itemErrorJSON struct {
		Index int    `json:"index"`
		Error string `json:"error"`
	}

	ingestResultJSON struct {
		Committed        int             `json:"committed"`
		Duplicates       int             `json:"duplicates"`
		Alerts           int             `json:"alerts"`
		Errors           []itemErrorJSON `json:"errors"`
		EvaluationErrors []itemErrorJSON `json:"evaluation_errors,omitempty"`
		// Warning is set when an interrupted bank sync was partially ingested.
		Warning string `json:"warning,omitempty"`
	}

	categoryAmountJSON struct {
		Category string `json:"category"`
		Amount   string `json:"amount"`
	}

	monthAmountJSON struct {
		Period string `json:"period"`
		Amount string `json:"amount"`
	}
)

func toEntryJSON(e core.LedgerEntry) entryJSON {
	return entryJSON{
		ID:          e.ID,
		Category:    e.Category,
		Amount:      core.FormatAmount(e.Amount),
		Description: e.Description,
		OccurredAt:  e.OccurredAt,
		Source:      string(e.Source),
		RecordedAt:  e.RecordedAt,
	}
}

func toEntriesJSON(list []core.LedgerEntry) []entryJSON {
	out := make([]entryJSON, 0, len(list))
	for _, e := range list {
		out = append(out, toEntryJSON(e))
	}
	return out
}

func toEvaluationJSON(ev services.Evaluation) evaluationJSON {
	if !ev.Found {
		return evaluationJSON{}
	}
	return evaluationJSON{
		Found:         true,
		Period:        ev.Period.Key(),
		Spent:         core.FormatAmount(ev.Spent),
		Remaining:     core.FormatAmount(ev.Remaining),
		OverThreshold: ev.OverThreshold,
		Alerted:       ev.Alerted,
	}
}

func toBudgetJSON(b core.Budget, current core.Period) budgetJSON {
	return budgetJSON{
		ID:                       b.ID,
		Category:                 b.Category,
		Limit:                    core.FormatAmount(b.Limit),
		NotifiedForCurrentPeriod: b.NotifiedIn(current),
		CreatedAt:                b.CreatedAt,
	}
}

func toBudgetsJSON(list []core.Budget, current core.Period) []budgetJSON {
	out := make([]budgetJSON, 0, len(list))
	for _, b := range list {
		out = append(out, toBudgetJSON(b, current))
	}
	return out
}

func toBudgetStatusJSON(list []core.BudgetStatus) []budgetStatusJSON {
	out := make([]budgetStatusJSON, 0, len(list))
	for _, s := range list {
		out = append(out, budgetStatusJSON{
			budgetJSON: toBudgetJSON(s.Budget, s.Period),
			Period:     s.Period.Key(),
			Spent:      core.FormatAmount(s.Spent),
			Remaining:  core.FormatAmount(s.Remaining),
		})
	}
	return out
}

func toGoalJSON(p core.GoalProgress) goalJSON {
	return goalJSON{
		ID:        p.Goal.ID,
		Title:     p.Goal.Title,
		Category:  p.Goal.Category,
		Target:    core.FormatAmount(p.Goal.Target),
		Deadline:  p.Goal.Deadline.Format("2006-01-02"),
		CreatedAt: p.Goal.CreatedAt,
		Progress:  core.FormatAmount(p.Progress),
		Remaining: core.FormatAmount(p.Remaining),
		Achieved:  p.Achieved,
	}
}

func toGoalsJSON(list []core.GoalProgress) []goalJSON {
	out := make([]goalJSON, 0, len(list))
	for _, p := range list {
		out = append(out, toGoalJSON(p))
	}
	return out
}

func toNotificationsJSON(list []core.Notification) []notificationJSON {
	out := make([]notificationJSON, 0, len(list))
	for _, n := range list {
		out = append(out, notificationJSON{
			ID:        n.ID,
			Kind:      string(n.Kind),
			Message:   n.Message,
			CreatedAt: n.CreatedAt,
			IsRead:    n.IsRead,
		})
	}
	return out
}

func toItemErrorsJSON(list []*core.ItemError) []itemErrorJSON {
	out := make([]itemErrorJSON, 0, len(list))
	for _, e := range list {
		out = append(out, itemErrorJSON{Index: e.Index, Error: e.Err.Error()})
	}
	return out
}

func toIngestResultJSON(res services.IngestResult) ingestResultJSON {
	out := ingestResultJSON{
		Committed:  len(res.Committed),
		Duplicates: res.Duplicates,
		Alerts:     res.Alerts,
		Errors:     toItemErrorsJSON(res.Errors),
	}
	if len(res.EvaluationErrors) > 0 {
		out.EvaluationErrors = toItemErrorsJSON(res.EvaluationErrors)
	}
	return out
}

func toCategoryAmountsJSON(list []core.CategoryAmount) []categoryAmountJSON {
	out := make([]categoryAmountJSON, 0, len(list))
	for _, c := range list {
		out = append(out, categoryAmountJSON{Category: c.Category, Amount: core.FormatAmount(c.Amount)})
	}
	return out
}

func toMonthAmountsJSON(list []core.MonthAmount) []monthAmountJSON {
	out := make([]monthAmountJSON, 0, len(list))
	for _, m := range list {
		out = append(out, monthAmountJSON{Period: m.Period.Key(), Amount: core.FormatAmount(m.Amount)})
	}
	return out
}
