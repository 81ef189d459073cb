package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Spok95/slip-bot/internal/metrics"
)

type FetchFunc[P, R any] func(ctx context.Context, params P) (R, error)

// Loader wraps one reference-data fetch. Requests are debounced under the
// loader's name and fenced by a sequence number: only the response to the
// most recently issued request may update the cache or reach apply.
type Loader[P, R any] struct {
	name  string
	fetch FetchFunc[P, R]
	deb   *Debouncer
	log   *slog.Logger

	applyMu sync.Mutex

	mu     sync.Mutex
	seq    uint64
	last   R
	params P
	has    bool
	err    error
}

func New[P, R any](name string, deb *Debouncer, log *slog.Logger, fetch FetchFunc[P, R]) *Loader[P, R] {
	return &Loader[P, R]{name: name, fetch: fetch, deb: deb, log: log.With("loader", name)}
}

func (l *Loader[P, R]) Name() string { return l.name }

// Fetch schedules a debounced request. The request counts as issued when
// it is scheduled, so a later Fetch supersedes it even while it is in
// flight. apply runs on the task goroutine and only for the latest
// request; a superseded or cancelled response is dropped.
func (l *Loader[P, R]) Fetch(ctx context.Context, params P, apply func(R, error)) {
	seq := l.issue()
	l.deb.Do(ctx, l.name, func(ctx context.Context) {
		res, err := l.fetch(ctx, params)

		l.applyMu.Lock()
		defer l.applyMu.Unlock()
		if err != nil && ctx.Err() != nil {
			metrics.LoaderRequests.WithLabelValues(l.name, "stale").Inc()
			return
		}
		if !l.settle(seq, params, res, err) {
			metrics.LoaderRequests.WithLabelValues(l.name, "stale").Inc()
			return
		}
		if err != nil {
			metrics.LoaderRequests.WithLabelValues(l.name, "error").Inc()
			l.log.Warn("fetch failed", "err", err)
		} else {
			metrics.LoaderRequests.WithLabelValues(l.name, "ok").Inc()
		}
		if apply != nil {
			apply(res, err)
		}
	})
}

// Load fetches synchronously, bypassing the debounce, and updates the cache
// on success. It still takes a sequence number so an older debounced
// response cannot overwrite it afterwards.
func (l *Loader[P, R]) Load(ctx context.Context, params P) (R, error) {
	seq := l.issue()
	res, err := l.fetch(ctx, params)
	l.applyMu.Lock()
	defer l.applyMu.Unlock()
	if !l.settle(seq, params, res, err) {
		metrics.LoaderRequests.WithLabelValues(l.name, "stale").Inc()
		var zero R
		return zero, errors.Join(err, errors.New(l.name+": superseded"))
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LoaderRequests.WithLabelValues(l.name, outcome).Inc()
	return res, err
}

func (l *Loader[P, R]) issue() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

func (l *Loader[P, R]) settle(seq uint64, params P, res R, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq != l.seq {
		return false
	}
	l.err = err
	if err == nil {
		l.last = res
		l.params = params
		l.has = true
	}
	return true
}

// Last returns the cached result of the last successful request.
func (l *Loader[P, R]) Last() (R, P, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.params, l.has
}

func (l *Loader[P, R]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Invalidate drops the cache and fences off any request in flight.
func (l *Loader[P, R]) Invalidate() {
	l.deb.Cancel(l.name)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	var zr R
	var zp P
	l.last, l.params, l.has, l.err = zr, zp, false, nil
}
