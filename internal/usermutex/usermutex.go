// Package usermutex serializes work per user with bounded waiting.
//
// Ownership is carried by the context returned from Acquire: a caller that
// passes that context back into Acquire for the same user re-enters without
// blocking. Any other caller waits up to the timeout and then gets ErrTimeout.
package usermutex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTimeout is returned when the lock could not be obtained in time.
var ErrTimeout = errors.New("usermutex: acquire timed out")

type entry struct {
	sem      chan struct{}
	refs     int // holders plus waiters
	lastUsed time.Time
}

type ownerKey struct{ user int64 }

// Table holds one lock per user. Entries are created lazily and reclaimed by
// Sweep once nobody holds or waits on them.
type Table struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry
}

// New creates an empty lock table.
func New() *Table {
	return &Table{
		now:     time.Now,
		entries: make(map[int64]*entry),
	}
}

// Guard releases a user lock. Release is idempotent.
type Guard struct {
	t      *Table
	user   int64
	e      *entry
	nested bool
	once   sync.Once

	released atomic.Bool
}

// Release gives the lock back. Nested guards release nothing.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		if g.nested {
			return
		}
		g.released.Store(true)
		<-g.e.sem
		g.t.unref(g.e)
	})
}

// Acquire obtains the lock for user, waiting at most timeout. The returned
// context marks the caller as owner and must be used for nested calls.
func (t *Table) Acquire(ctx context.Context, user int64, timeout time.Duration) (context.Context, *Guard, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	e, ok := t.entries[user]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		t.entries[user] = e
	}
	if owner, _ := ctx.Value(ownerKey{user}).(*Guard); owner != nil && owner.e == e && !owner.released.Load() {
		t.mu.Unlock()
		return ctx, &Guard{t: t, user: user, e: e, nested: true}, nil
	}
	e.refs++
	e.lastUsed = t.now()
	t.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	default:
		if err := wait(ctx, e, timeout); err != nil {
			t.unref(e)
			return ctx, nil, err
		}
	}
	g := &Guard{t: t, user: user, e: e}
	return context.WithValue(ctx, ownerKey{user}, g), g, nil
}

func wait(ctx context.Context, e *entry, timeout time.Duration) error {
	if timeout <= 0 {
		return ErrTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// With runs fn while holding the user lock and releases it on every exit
// path, including panics.
func (t *Table) With(ctx context.Context, user int64, timeout time.Duration, fn func(ctx context.Context) error) error {
	lockedCtx, guard, err := t.Acquire(ctx, user, timeout)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn(lockedCtx)
}

func (t *Table) unref(e *entry) {
	t.mu.Lock()
	e.refs--
	e.lastUsed = t.now()
	t.mu.Unlock()
}

// Sweep removes entries that are neither held nor awaited and have been idle
// for at least idle. keep, when non-nil, protects users it returns true for.
// It returns the number of removed entries.
func (t *Table) Sweep(idle time.Duration, keep func(user int64) bool) int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for user, e := range t.entries {
		if e.refs > 0 || now.Sub(e.lastUsed) < idle {
			continue
		}
		if keep != nil && keep(user) {
			continue
		}
		delete(t.entries, user)
		removed++
	}
	return removed
}

// Len returns the number of tracked users.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
