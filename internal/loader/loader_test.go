package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDebouncerLastCallWins(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var mu sync.Mutex
	var ran []int
	for i := 1; i <= 5; i++ {
		d.Do(context.Background(), "k", func(context.Context) {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
		})
	}
	d.Wait()
	if len(ran) != 1 || ran[0] != 5 {
		t.Errorf("Expected only the last call to run, got %v", ran)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(0)
	var n atomic.Int32
	d.Do(context.Background(), "a", func(context.Context) { n.Add(1) })
	d.Do(context.Background(), "b", func(context.Context) { n.Add(1) })
	d.Wait()
	if n.Load() != 2 {
		t.Errorf("Expected 2 runs, got %d", n.Load())
	}
}

func TestDebouncerCancelAll(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var n atomic.Int32
	d.Do(context.Background(), "a", func(context.Context) { n.Add(1) })
	d.Do(context.Background(), "b", func(context.Context) { n.Add(1) })
	if !d.Pending("a") {
		t.Fatal("Expected a to be pending")
	}
	d.CancelAll()
	d.Wait()
	if n.Load() != 0 {
		t.Errorf("Expected no runs after cancel, got %d", n.Load())
	}
	if d.Pending("a") {
		t.Error("Expected nothing pending after cancel")
	}
}

func TestDebouncerCancelsRunningTask(t *testing.T) {
	d := NewDebouncer(0)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	d.Do(context.Background(), "k", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started
	d.Cancel("k")
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("Expected running task context to be cancelled")
	}
	d.Wait()
}

func TestLoaderDropsStaleResponse(t *testing.T) {
	d := NewDebouncer(0)
	release := make(chan struct{})
	l := New("labs", d, discard(), func(ctx context.Context, p int) (string, error) {
		if p == 1 {
			<-release
			return "old", nil
		}
		return "new", nil
	})

	var mu sync.Mutex
	var applied []string
	apply := func(r string, err error) {
		mu.Lock()
		applied = append(applied, r)
		mu.Unlock()
	}

	// first request is in flight and slow
	l.Fetch(context.Background(), 1, apply)
	time.Sleep(20 * time.Millisecond)

	// a synchronous Load does not go through the debouncer, so the fence
	// alone has to reject the first response
	res, err := l.Load(context.Background(), 2)
	if err != nil || res != "new" {
		t.Fatalf("Expected new, got %q %v", res, err)
	}
	close(release)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 0 {
		t.Errorf("Expected stale response to be dropped, applied %v", applied)
	}
	last, params, ok := l.Last()
	if !ok || last != "new" || params != 2 {
		t.Errorf("Expected cache to hold new/2, got %q/%d/%v", last, params, ok)
	}
}

func TestLoaderKeepsCacheOnError(t *testing.T) {
	d := NewDebouncer(0)
	fail := false
	l := New("cats", d, discard(), func(ctx context.Context, p int) ([]int, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return []int{p}, nil
	})

	if _, err := l.Load(context.Background(), 1); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	fail = true
	var gotErr error
	l.Fetch(context.Background(), 2, func(_ []int, err error) { gotErr = err })
	d.Wait()

	if gotErr == nil {
		t.Fatal("Expected apply to receive the error")
	}
	last, params, ok := l.Last()
	if !ok || len(last) != 1 || last[0] != 1 || params != 1 {
		t.Errorf("Expected previous cache to survive, got %v/%d/%v", last, params, ok)
	}
	if l.Err() == nil {
		t.Error("Expected Err to report the failure")
	}
}

func TestLoaderInvalidate(t *testing.T) {
	d := NewDebouncer(0)
	l := New("docs", d, discard(), func(ctx context.Context, p int) (int, error) { return p, nil })
	if _, err := l.Load(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	l.Invalidate()
	if _, _, ok := l.Last(); ok {
		t.Error("Expected cache to be empty after Invalidate")
	}
}

func TestLoaderNewerFetchSupersedesInFlight(t *testing.T) {
	d := NewDebouncer(0)
	started := make(chan struct{})
	l := New("products", d, discard(), func(ctx context.Context, p int) (string, error) {
		if p == 1 {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "zirc", nil
	})

	var mu sync.Mutex
	var applied []string
	var errs []error
	apply := func(r string, err error) {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, r)
		if err != nil {
			errs = append(errs, err)
		}
	}

	l.Fetch(context.Background(), 1, apply)
	<-started
	l.Fetch(context.Background(), 2, apply)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 0 {
		t.Errorf("Expected the cancelled request to stay silent, got %v", errs)
	}
	if len(applied) != 1 || applied[0] != "zirc" {
		t.Errorf("Expected only the newer response, got %v", applied)
	}
	if l.Err() != nil {
		t.Errorf("Expected no loader error, got %v", l.Err())
	}
}

func TestLoaderScheduledFetchIsSupersededByLoad(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	l := New("labs", d, discard(), func(ctx context.Context, p int) (int, error) { return p, nil })

	var applied atomic.Int32
	l.Fetch(context.Background(), 1, func(int, error) { applied.Add(1) })
	if _, err := l.Load(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	d.Wait()

	if applied.Load() != 0 {
		t.Error("Expected the older scheduled fetch to be dropped")
	}
	if last, _, _ := l.Last(); last != 2 {
		t.Errorf("Expected 2 in the cache, got %d", last)
	}
}
