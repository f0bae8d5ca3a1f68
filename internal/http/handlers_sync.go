package http

import (
	"errors"
	"fmt"
	"net/http"

	"finwatch/internal/core"
	applog "finwatch/internal/log"
)

// handleSync pulls the caller's bank transactions. With a sync queue
// configured the request is handed to a worker and answered with 202;
// otherwise the sync runs inline.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token := sanitizeInput(req.ConnectionToken)
	if token == "" {
		writeError(w, r, fmt.Errorf("%w: connection_token is required", core.ErrAuthentication))
		return
	}

	if s.deps.SyncQueue != nil {
		if err := s.deps.SyncQueue.PublishSyncRequest(r.Context(), userID, token); err != nil {
			writeError(w, r, fmt.Errorf("queue sync request: %w: %w", core.ErrDelivery, err))
			return
		}
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Sync request queued", "user_id", userID)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	res, err := s.deps.Ingestor.Sync(r.Context(), userID, token)
	if err != nil {
		partial := errors.Is(err, core.ErrUpstream) && (len(res.Committed) > 0 || res.Duplicates > 0 || len(res.Errors) > 0)
		if !partial {
			writeError(w, r, err)
			return
		}
		out := toIngestResultJSON(res)
		out.Warning = err.Error()
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResultJSON(res))
}
