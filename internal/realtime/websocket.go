package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/log"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the JSON frame written for every pushed notification.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func NewMessage(n core.Notification) Message {
	return Message{
		Type:      "notification",
		ID:        n.ID,
		Kind:      string(n.Kind),
		Message:   n.Message,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Handler upgrades requests to WebSocket connections and registers them for
// the user returned by identify. Requests without a user are rejected with 401.
type Handler struct {
	registry   *Registry
	identify   func(*http.Request) string
	outboxSize int
	upgrader   websocket.Upgrader
}

func NewHandler(registry *Registry, identify func(*http.Request) string, outboxSize int) *Handler {
	return &Handler{
		registry:   registry,
		identify:   identify,
		outboxSize: outboxSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := h.identify(r)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.WarnContext(r.Context(), "WebSocket upgrade failed",
			log.FieldComponent, log.ComponentRealtime, log.FieldUserID, userID, log.FieldError, err)
		return
	}

	conn := NewConn(userID, h.outboxSize)
	h.registry.Register(conn)
	slog.InfoContext(r.Context(), "Live connection opened",
		log.FieldComponent, log.ComponentRealtime,
		log.FieldUserID, userID,
		"connections", h.registry.Count(userID))

	go h.writePump(ws, conn)
	h.readPump(ws, conn)
}

// readPump discards client frames and unregisters the connection once the
// client goes away.
func (h *Handler) readPump(ws *websocket.Conn, conn *Conn) {
	defer func() {
		h.registry.Unregister(conn)
		ws.Close()
		slog.Info("Live connection closed",
			log.FieldComponent, log.ComponentRealtime, log.FieldUserID, conn.UserID())
	}()

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case n := <-conn.Outbox():
			body, err := json.Marshal(NewMessage(n))
			if err != nil {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, body); err != nil {
				h.registry.Unregister(conn)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.registry.Unregister(conn)
				return
			}
		}
	}
}
