// Package realtime keeps the live client connections of this node and pushes
// notifications to them without ever blocking the caller.
package realtime

import (
	"log/slog"
	"sync"

	"finwatch/internal/core"
	"finwatch/internal/log"
)

// DefaultOutboxSize is the number of notifications a connection may have
// queued before further pushes to it are dropped.
const DefaultOutboxSize = 16

// Conn is one live client connection with a bounded outbox.
type Conn struct {
	userID string
	outbox chan core.Notification
	done   chan struct{}
	once   sync.Once
}

func NewConn(userID string, outboxSize int) *Conn {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Conn{
		userID: userID,
		outbox: make(chan core.Notification, outboxSize),
		done:   make(chan struct{}),
	}
}

func (c *Conn) UserID() string { return c.userID }

// Outbox yields queued notifications until the connection is closed.
func (c *Conn) Outbox() <-chan core.Notification { return c.outbox }

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// offer queues n without blocking. It reports false when the outbox is full
// or the connection is closed.
func (c *Conn) offer(n core.Notification) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- n:
		return true
	default:
		return false
	}
}

// Close marks the connection closed. It is safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

// Registry maps users to their live connections on this node.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: map[string]map[*Conn]struct{}{}}
}

func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.userID]
	if !ok {
		set = map[*Conn]struct{}{}
		r.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes and closes c.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	if set, ok := r.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.conns, c.userID)
		}
	}
	r.mu.Unlock()
	c.Close()
}

// Push offers n to every live connection of userID. It never blocks and
// reports whether at least one connection accepted the notification. A
// connection whose outbox is full misses this notification only.
func (r *Registry) Push(userID string, n core.Notification) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := false
	for c := range r.conns[userID] {
		if c.offer(n) {
			delivered = true
			continue
		}
		slog.Warn("Dropped notification for slow connection",
			log.FieldComponent, log.ComponentRealtime,
			log.FieldUserID, userID,
			"notification_id", n.ID)
	}
	return delivered
}

// Count returns the number of live connections of userID.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// Total returns the number of live connections on this node.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}
