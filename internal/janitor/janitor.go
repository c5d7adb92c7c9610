// Package janitor periodically reclaims per-user bookkeeping that no longer
// protects anything: idle lock entries and expired rate windows.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/m3rciful/ticketbot/core/logger"
)

// Locks is the lock table being swept.
type Locks interface {
	Sweep(idle time.Duration, keep func(user int64) bool) int
	Len() int
}

// Sessions reports which users still have a dialog in progress.
type Sessions interface {
	Has(user int64) bool
}

// Windows is a rate limiter being pruned.
type Windows interface {
	Prune() int
}

// Janitor sweeps on a fixed interval.
type Janitor struct {
	locks    Locks
	sessions Sessions
	windows  []Windows
	idle     time.Duration
	interval time.Duration
	log      *slog.Logger
}

// New creates a janitor. Lock entries idle for at least idle whose user has
// no session are removed every interval, and each of windows is pruned.
func New(locks Locks, sessions Sessions, idle, interval time.Duration, windows ...Windows) (*Janitor, error) {
	if locks == nil || sessions == nil {
		return nil, errors.New("janitor: nil lock table or session store")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("janitor: interval must be positive, got %s", interval)
	}
	return &Janitor{
		locks:    locks,
		sessions: sessions,
		windows:  windows,
		idle:     idle,
		interval: interval,
		log:      logger.Component("janitor"),
	}, nil
}

// Sweep runs one pass and returns the number of removed lock entries and
// rate windows.
func (j *Janitor) Sweep(ctx context.Context) (swept, pruned int) {
	start := time.Now()
	swept = j.locks.Sweep(j.idle, j.sessions.Has)
	for _, w := range j.windows {
		if w != nil {
			pruned += w.Prune()
		}
	}
	level := slog.LevelDebug
	if swept > 0 || pruned > 0 {
		level = slog.LevelInfo
	}
	logger.LogEvent(ctx, j.log, level, "janitor.sweep",
		slog.Int("swept", swept),
		slog.Int("pruned", pruned),
		slog.Int("remaining", j.locks.Len()),
		slog.Duration("duration", logger.Took(start)),
	)
	return swept, pruned
}

// Run schedules Sweep and blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(newSchedulerLogger(j.log)),
	)
	if err != nil {
		return fmt.Errorf("janitor: create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() { j.Sweep(ctx) }),
		gocron.WithName("janitor.sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("janitor: schedule sweep: %w", err)
	}

	s.Start()
	logger.LogEvent(ctx, j.log, slog.LevelInfo, "janitor.start", slog.Duration("interval", j.interval))

	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("janitor: shutdown scheduler: %w", err)
	}
	return nil
}
