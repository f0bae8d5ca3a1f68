package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage"

	"github.com/google/uuid"
)

// Pusher delivers a notification to the live connections of a user. It must
// not block and reports whether at least one connection accepted it.
type Pusher interface {
	Push(userID string, n core.Notification) bool
}

// EventPublisher announces persisted notifications to other processes.
type EventPublisher interface {
	PublishNotification(ctx context.Context, n core.Notification) error
}

// Notifier is what the evaluator and the summarizer need from the dispatcher.
type Notifier interface {
	Enqueue(ctx context.Context, userID string, kind core.NotificationKind, message string) (core.Notification, error)
}

// Dispatcher persists notifications and then delivers them best effort.
type Dispatcher struct {
	store  storage.NotificationStore
	pusher Pusher
	events EventPublisher
	now    func() time.Time
}

// NewDispatcher wires a dispatcher. pusher and events may be nil.
func NewDispatcher(store storage.NotificationStore, pusher Pusher, events EventPublisher) *Dispatcher {
	return &Dispatcher{
		store:  store,
		pusher: pusher,
		events: events,
		now:    time.Now,
	}
}

// Enqueue stores the notification and, only once it is durable, pushes it to
// live connections and publishes an event. Delivery problems are logged and
// never returned: the only error is a failed persist.
func (d *Dispatcher) Enqueue(ctx context.Context, userID string, kind core.NotificationKind, message string) (core.Notification, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.Notification{}, err
	}

	n := core.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		return core.Notification{}, fmt.Errorf("enqueue notification: %w", core.Persistence("insert notification", err))
	}

	d.deliver(ctx, n)
	return n, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n core.Notification) {
	if d.pusher != nil {
		if !d.pusher.Push(n.UserID, n) {
			slog.DebugContext(ctx, "Notification not pushed, no live connection accepted it",
				"component", "dispatch", "user_id", n.UserID, "notification_id", n.ID)
		}
	}

	if d.events == nil {
		return
	}
	if err := d.events.PublishNotification(ctx, n); err != nil {
		slog.WarnContext(ctx, "Failed to publish notification event",
			"component", "dispatch",
			"user_id", n.UserID,
			"notification_id", n.ID,
			"error", fmt.Errorf("%w: %w", core.ErrDelivery, err))
	}
}

func (d *Dispatcher) List(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error) {
	if err := core.RequireUser(userID); err != nil {
		return nil, err
	}
	list, err := d.store.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// MarkRead flags one of the user's notifications as read.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id string) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	if err := d.store.MarkRead(ctx, userID, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
