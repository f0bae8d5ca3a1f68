package http

import (
	"net/http"
)

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, limit, err := req.parse()
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.deps.Budgets.Create(r.Context(), userID, category, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetJSON(b, s.currentPeriod()))
}

// handleListBudgets lists budgets, optionally filtered by ?q= on the category.
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	list, err := s.deps.Budgets.List(r.Context(), userID, sanitizeInput(r.URL.Query().Get("q")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetsJSON(list, s.currentPeriod()))
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, limit, err := req.parse()
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.deps.Budgets.Update(r.Context(), userID, r.PathValue("id"), category, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetJSON(b, s.currentPeriod()))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	if err := s.deps.Budgets.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBudgetPerformance reports spend against every budget for the
// current period. Remaining goes negative once a budget is exceeded.
func (s *Server) handleBudgetPerformance(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	statuses, err := s.deps.Budgets.Performance(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetStatusJSON(statuses))
}
