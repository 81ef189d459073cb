// Package janitor periodically drops idle wizard sessions and expired
// page-transition cache entries.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const Interval = 15 * time.Minute

// Sessions is the durable wizard session store.
type Sessions interface {
	PurgeStale(ctx context.Context, before time.Time) ([]int64, error)
}

// TransitionCache is the local page-transition cache.
type TransitionCache interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Forgetter drops in-memory wizards of the given chats.
type Forgetter interface {
	Forget(owners []int64)
}

type Janitor struct {
	sessions Sessions
	cache    TransitionCache
	forget   Forgetter
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time

	scheduler *gocron.Scheduler
}

func New(sessions Sessions, cache TransitionCache, forget Forgetter, ttl time.Duration, log *slog.Logger) *Janitor {
	return &Janitor{
		sessions:  sessions,
		cache:     cache,
		forget:    forget,
		ttl:       ttl,
		log:       log.With("component", "janitor"),
		now:       time.Now,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules RunOnce every Interval, the first run immediately.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.scheduler.Every(Interval).Do(func() {
		if err := j.RunOnce(ctx); err != nil {
			j.log.Error("cleanup failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	j.scheduler.StartAsync()
	return nil
}

func (j *Janitor) Stop() {
	j.scheduler.Stop()
}

// RunOnce performs a single cleanup pass. Both stores are attempted even
// when one fails.
func (j *Janitor) RunOnce(ctx context.Context) error {
	before := j.now().Add(-j.ttl)
	var errs []error

	if j.sessions != nil {
		owners, err := j.sessions.PurgeStale(ctx, before)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge sessions: %w", err))
		} else if len(owners) > 0 {
			if j.forget != nil {
				j.forget.Forget(owners)
			}
			j.log.Info("idle wizards reset", "count", len(owners))
		}
	}

	if j.cache != nil {
		n, err := j.cache.Purge(ctx, before)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge transition cache: %w", err))
		} else if n > 0 {
			j.log.Info("transition cache purged", "count", n)
		}
	}
	return errors.Join(errs...)
}
