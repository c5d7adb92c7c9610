// Package ratelimit implements per-user sliding window admission control.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most max events per user within any sliding window.
// It is safe for concurrent use; the check and the append happen under one
// lock, so concurrent calls for the same user never exceed the cap.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[int64][]time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter accepting max events per window. A non-positive max
// or window disables limiting.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		max:     max,
		window:  window,
		now:     time.Now,
		windows: make(map[int64][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit records an event for user and reports whether it is accepted.
// Rejected events are not recorded.
func (l *Limiter) Admit(user int64) bool {
	if l.max <= 0 || l.window <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	q := prune(l.windows[user], now, l.window)
	if len(q) >= l.max {
		l.windows[user] = q
		return false
	}
	l.windows[user] = append(q, now)
	return true
}

// Prune drops users whose windows hold no live timestamps and returns how
// many entries were removed.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for user, q := range l.windows {
		q = prune(q, now, l.window)
		if len(q) == 0 {
			delete(l.windows, user)
			removed++
			continue
		}
		l.windows[user] = q
	}
	return removed
}

// Active reports whether user has any timestamp inside the current window.
func (l *Limiter) Active(user int64) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	return len(prune(l.windows[user], now, l.window)) > 0
}

// Len returns the number of tracked users.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops timestamps older than window relative to now. q is ordered.
func prune(q []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(q) && now.Sub(q[i]) > window {
		i++
	}
	if i == 0 {
		return q
	}
	// Copy to let the old backing array go.
	return append([]time.Time(nil), q[i:]...)
}
