package services

import (
	"context"
	"errors"
	"testing"

	"finwatch/internal/core"
	"finwatch/internal/storage/memory"
)

func TestDispatcher_Enqueue(t *testing.T) {
	tests := []struct {
		name      string
		accept    bool
		eventsErr error
	}{
		{name: "delivered", accept: true},
		{name: "no live connection", accept: false},
		{name: "broker down", accept: true, eventsErr: errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New()
			pusher := &recordingPusher{accept: tt.accept}
			events := &fakeEvents{err: tt.eventsErr}
			d := NewDispatcher(store, pusher, events)
			d.now = fixedClock(midMar)

			n, err := d.Enqueue(ctx, "u1", core.KindBudgetAlert, "hello")
			if err != nil {
				t.Fatalf("Enqueue() error = %v", err)
			}
			if n.ID == "" || !n.CreatedAt.Equal(midMar) || n.IsRead {
				t.Errorf("unexpected notification %+v", n)
			}

			stored, err := store.ListNotifications(ctx, "u1", false)
			if err != nil {
				t.Fatalf("ListNotifications() error = %v", err)
			}
			if len(stored) != 1 || stored[0].ID != n.ID {
				t.Fatalf("stored = %+v, want the enqueued notification", stored)
			}
			if pusher.count() != 1 {
				t.Errorf("push attempts = %d, want 1", pusher.count())
			}
			wantPublished := 1
			if tt.eventsErr != nil {
				wantPublished = 0
			}
			if len(events.published) != wantPublished {
				t.Errorf("published = %d, want %d", len(events.published), wantPublished)
			}
		})
	}
}

func TestDispatcher_PersistFailureSkipsDelivery(t *testing.T) {
	pusher := &recordingPusher{accept: true}
	events := &fakeEvents{}
	d := NewDispatcher(failingNotifications{memory.New()}, pusher, events)

	_, err := d.Enqueue(context.Background(), "u1", core.KindBudgetAlert, "hello")
	if !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("Enqueue() error = %v, want ErrPersistence", err)
	}
	if pusher.count() != 0 || len(events.published) != 0 {
		t.Errorf("delivered a notification that was never stored")
	}
}

func TestDispatcher_MissingUser(t *testing.T) {
	d := NewDispatcher(memory.New(), nil, nil)
	if _, err := d.Enqueue(context.Background(), "", core.KindBudgetAlert, "x"); !errors.Is(err, core.ErrAuthentication) {
		t.Errorf("Enqueue() error = %v, want ErrAuthentication", err)
	}
}

func TestDispatcher_ListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(memory.New(), nil, nil)

	first, _ := d.Enqueue(ctx, "u1", core.KindBudgetAlert, "one")
	if _, err := d.Enqueue(ctx, "u1", core.KindMonthlySummary, "two"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := d.MarkRead(ctx, "u1", first.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	unread, err := d.List(ctx, "u1", true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(unread) != 1 || unread[0].Message != "two" {
		t.Errorf("unread = %+v, want only the second notification", unread)
	}

	if err := d.MarkRead(ctx, "u2", first.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("MarkRead() for another user error = %v, want ErrNotFound", err)
	}
}
