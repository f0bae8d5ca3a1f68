// Package scheduler runs a callback on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickFunc receives the tick time. It must honour ctx cancellation.
type TickFunc func(ctx context.Context, now time.Time)

// Job is a running periodic callback.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// OnTick calls fn once immediately and then every interval until ctx is
// cancelled or Stop is called. Each tick runs in its own goroutine, so a slow
// callback never delays the clock; callers that must not overlap guard
// themselves.
func OnTick(ctx context.Context, interval time.Duration, fn TickFunc) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(j.done)

		var wg sync.WaitGroup
		defer wg.Wait()

		fire := func(now time.Time) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						slog.ErrorContext(ctx, "Scheduled callback panicked", "component", "scheduler", "panic", r)
					}
				}()
				fn(ctx, now)
			}()
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fire(time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				fire(now)
			}
		}
	}()

	return j
}

// Stop cancels the job and waits for in-flight callbacks to return.
func (j *Job) Stop() {
	j.cancel()
	<-j.done
}

// Done is closed once the job stopped and every callback returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
