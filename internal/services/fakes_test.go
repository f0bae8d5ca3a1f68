package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage/memory"

	"github.com/shopspring/decimal"
)

var (
	march   = core.Period{Year: 2024, Month: time.March}
	midMar  = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func raw(desc, category, amount string, at time.Time) core.RawTransaction {
	return core.RawTransaction{Description: desc, Category: category, Amount: dec(amount), OccurredAt: at}
}

// recordingPusher records pushes and reports the configured acceptance.
type recordingPusher struct {
	mu     sync.Mutex
	pushed []core.Notification
	accept bool
}

func (p *recordingPusher) Push(_ string, n core.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, n)
	return p.accept
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}

type fakeEvents struct {
	mu        sync.Mutex
	published []core.Notification
	err       error
}

func (e *fakeEvents) PublishNotification(_ context.Context, n core.Notification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.published = append(e.published, n)
	return nil
}

// recordingNotifier is a Notifier that keeps every message it is given.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    []core.Notification
	failFor map[string]bool
}

func (r *recordingNotifier) Enqueue(_ context.Context, userID string, kind core.NotificationKind, message string) (core.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[userID] {
		return core.Notification{}, core.Persistence("insert notification", errBoom)
	}
	n := core.Notification{UserID: userID, Kind: kind, Message: message}
	r.sent = append(r.sent, n)
	return n, nil
}

func (r *recordingNotifier) byKind(kind core.NotificationKind) []core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// failingNotifications makes InsertNotification fail.
type failingNotifications struct {
	*memory.Store
}

func (failingNotifications) InsertNotification(context.Context, core.Notification) error {
	return errBoom
}

// flakyLedger fails SumSince for selected users.
type flakyLedger struct {
	*memory.Store
	failFor map[string]bool
}

func (l flakyLedger) SumSince(ctx context.Context, userID string, from, until, recordedBefore time.Time) (decimal.Decimal, error) {
	if l.failFor[userID] {
		return decimal.Zero, core.Persistence("sum since", errBoom)
	}
	return l.Store.SumSince(ctx, userID, from, until, recordedBefore)
}

// slowLedger blocks SumSince for selected users until ctx is done.
type slowLedger struct {
	*memory.Store
	slowFor map[string]bool
}

func (l slowLedger) SumSince(ctx context.Context, userID string, from, until, recordedBefore time.Time) (decimal.Decimal, error) {
	if l.slowFor[userID] {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	return l.Store.SumSince(ctx, userID, from, until, recordedBefore)
}

// fakeSource returns a canned result from the banking collaborator.
type fakeSource struct {
	items []core.RawTransaction
	err   error
	token string
}

func (f *fakeSource) FetchTransactions(_ context.Context, token string) ([]core.RawTransaction, error) {
	f.token = token
	return f.items, f.err
}

type countingCache struct {
	invalidated []string
}

func (c *countingCache) Invalidate(userID string) { c.invalidated = append(c.invalidated, userID) }
