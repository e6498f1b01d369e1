package scheduler

import (
	"context"
	"sync"
	"time"
)

// Timer owns at most one repeating task. Arm cancels the running task and
// starts the next one at once; a cycle already in flight on the old task
// finishes on its own but the old task never ticks again.
type Timer struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// Arm runs fn immediately and then every interval until ctx is done or the
// timer is re-armed or stopped. Ticks that fire while fn runs are dropped.
func (t *Timer) Arm(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.loops.Add(1)
	go func() {
		defer t.loops.Done()
		tk := time.NewTicker(interval)
		defer tk.Stop()

		fn(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				// a tick and a cancel can be ready together
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
}

// Stop cancels the task and waits for every loop, including ones replaced
// by Arm, to exit. In-flight cycles finish first.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
	t.loops.Wait()
}

// Disarm cancels the task without waiting for an in-flight cycle.
func (t *Timer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
