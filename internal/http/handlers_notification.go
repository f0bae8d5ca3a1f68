package http

import (
	"net/http"
)

// handleListNotifications returns stored notifications, newest first.
// ?unread=true limits the list to unread ones.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	list, err := s.deps.Notifications.List(r.Context(), userID, ParseBoolParam(r.URL.Query(), "unread"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationsJSON(list))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	if err := s.deps.Notifications.MarkRead(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
