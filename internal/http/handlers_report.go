package http

import (
	"net/http"
)

// handleCategorySummary totals spend per category. from and to are
// inclusive days (YYYY-MM-DD); either defaults to the current month.
func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	q := r.URL.Query()
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}

	totals, err := s.deps.Reports.CategorySummary(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryAmountsJSON(totals))
}

func (s *Server) handleMonthlyTrends(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	months, err := s.deps.Reports.MonthlyTrends(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthAmountsJSON(months))
}
