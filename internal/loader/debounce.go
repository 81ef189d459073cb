// Package loader provides the debounced, supersedable fetch primitives the
// slip wizard uses for its reference data.
package loader

import (
	"context"
	"sync"
	"time"
)

// Debouncer runs at most one task per key after a quiet period. Scheduling
// a key again before it fires replaces the pending task; a task that has
// already started gets its context cancelled.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*task
	wg      sync.WaitGroup
}

type task struct {
	timer  *time.Timer
	cancel context.CancelFunc
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, pending: map[string]*task{}}
}

func (d *Debouncer) Do(ctx context.Context, key string, fn func(ctx context.Context)) {
	d.DoAfter(ctx, key, d.delay, fn)
}

// DoAfter is Do with an explicit delay for this call.
func (d *Debouncer) DoAfter(ctx context.Context, key string, delay time.Duration, fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked(key)

	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{cancel: cancel}
	d.wg.Add(1)
	t.timer = time.AfterFunc(delay, func() {
		defer d.wg.Done()
		defer cancel()
		if tctx.Err() != nil {
			return
		}
		fn(tctx)
		d.mu.Lock()
		if d.pending[key] == t {
			delete(d.pending, key)
		}
		d.mu.Unlock()
	})
	d.pending[key] = t
}

func (d *Debouncer) stopLocked(key string) {
	t, ok := d.pending[key]
	if !ok {
		return
	}
	if t.timer.Stop() {
		// never fired, so its deferred Done will not run
		d.wg.Done()
	}
	t.cancel()
	delete(d.pending, key)
}

func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked(key)
}

func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.pending {
		d.stopLocked(key)
	}
}

// Pending reports whether a task for key is scheduled or running.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Wait blocks until every scheduled task has run or been cancelled.
func (d *Debouncer) Wait() {
	d.wg.Wait()
}
