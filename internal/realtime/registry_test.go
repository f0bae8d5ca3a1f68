package realtime

import (
	"sync"
	"testing"
	"time"

	"finwatch/internal/core"
)

func note(id string) core.Notification {
	return core.Notification{ID: id, UserID: "u1", Kind: core.KindBudgetAlert, Message: "m-" + id}
}

func TestRegistry_PushWithoutConnections(t *testing.T) {
	r := NewRegistry()
	if r.Push("u1", note("1")) {
		t.Error("Push() = true with no live connection")
	}
}

func TestRegistry_PushToEveryConnection(t *testing.T) {
	r := NewRegistry()
	a, b := NewConn("u1", 4), NewConn("u1", 4)
	other := NewConn("u2", 4)
	r.Register(a)
	r.Register(b)
	r.Register(other)

	if !r.Push("u1", note("1")) {
		t.Fatal("Push() = false, want delivered")
	}
	for name, c := range map[string]*Conn{"a": a, "b": b} {
		select {
		case n := <-c.Outbox():
			if n.ID != "1" {
				t.Errorf("%s got %q", name, n.ID)
			}
		default:
			t.Errorf("%s received nothing", name)
		}
	}
	select {
	case n := <-other.Outbox():
		t.Errorf("u2 received %+v", n)
	default:
	}
}

func TestRegistry_FullOutboxNeverBlocks(t *testing.T) {
	r := NewRegistry()
	c := NewConn("u1", 2)
	r.Register(c)

	done := make(chan []bool)
	go func() {
		var got []bool
		for i := 0; i < 5; i++ {
			got = append(got, r.Push("u1", note(string(rune('a'+i)))))
		}
		done <- got
	}()

	select {
	case got := <-done:
		want := []bool{true, true, false, false, false}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("push %d = %v, want %v", i, got[i], want[i])
			}
		}
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a full outbox")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	c := NewConn("u1", 1)
	r.Register(c)
	r.Unregister(c)
	r.Unregister(c)

	if r.Count("u1") != 0 {
		t.Errorf("Count() = %d after unregister", r.Count("u1"))
	}
	if r.Push("u1", note("1")) {
		t.Error("Push() reached an unregistered connection")
	}
	select {
	case <-c.Done():
	default:
		t.Error("unregistered connection not closed")
	}
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := NewConn("u1", 1)
			r.Register(c)
			r.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			r.Push("u1", note("x"))
		}()
	}
	wg.Wait()
	if r.Count("u1") != 0 {
		t.Errorf("Count() = %d, want 0", r.Count("u1"))
	}
}
