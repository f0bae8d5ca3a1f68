package amqp

import (
	"encoding/json"
	"time"

	"finwatch/internal/core"
)

// NotificationCreatedMessage announces a notification that has been durably
// stored. The API process consumes it to push notifications created by the
// workers to its live connections. Origin identifies the publishing client.
type NotificationCreatedMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Origin    string    `json:"origin,omitempty"`
}

func NewNotificationCreatedMessage(n core.Notification) *NotificationCreatedMessage {
	return &NotificationCreatedMessage{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
}

func (m *NotificationCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Notification converts the message back to the domain type.
func (m *NotificationCreatedMessage) Notification() core.Notification {
	return core.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Kind:      core.NotificationKind(m.Kind),
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}

func NotificationCreatedMessageFromJSON(data []byte) (*NotificationCreatedMessage, error) {
	var msg NotificationCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SyncRequestMessage asks a sync worker to pull a user's bank transactions.
type SyncRequestMessage struct {
	UserID          string    `json:"user_id"`
	ConnectionToken string    `json:"connection_token"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewSyncRequestMessage(userID, connectionToken string) *SyncRequestMessage {
	return &SyncRequestMessage{
		UserID:          userID,
		ConnectionToken: connectionToken,
		Timestamp:       time.Now(),
	}
}

func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
