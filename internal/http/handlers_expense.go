package http

import (
	"net/http"

	"finwatch/internal/core"
)

// handleCreateExpense records a manual expense and reports the budget state
// of its category.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	raw, err := req.toRaw()
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, ev, err := s.deps.Expenses.Record(r.Context(), userID, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Entry  entryJSON      `json:"entry"`
		Budget evaluationJSON `json:"budget"`
	}{toEntryJSON(entry), toEvaluationJSON(ev)})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	period, err := ParsePeriodParam(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := s.deps.Expenses.List(r.Context(), userID, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntriesJSON(entries))
}

func (s *Server) handleAmendExpense(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req amendmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amendment, err := req.toAmendment()
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.deps.Expenses.Amend(r.Context(), userID, r.PathValue("id"), amendment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryJSON(entry))
}

// handleImportTransactions ingests a batch of bank transactions pushed by a
// client. Items that fail to parse keep their index and are reported with the
// ingestor's own item errors.
func (s *Server) handleImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req []transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]core.RawTransaction, len(req))
	for i, t := range req {
		items[i] = t.toRawLenient()
	}

	res, err := s.deps.Ingestor.Ingest(r.Context(), userID, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResultJSON(res))
}
