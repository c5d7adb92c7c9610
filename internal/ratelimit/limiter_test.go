package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAdmitRejectsAfterCapWithinWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(6, 10*time.Second, WithClock(clock.Now))

	for i := 0; i < 6; i++ {
		require.True(t, l.Admit(1), "event %d should be admitted", i)
		clock.Advance(time.Second)
	}
	assert.False(t, l.Admit(1), "seventh event inside the window must be rejected")
}

func TestAdmitRejectionDoesNotRecord(t *testing.T) {
	clock := newFakeClock()
	l := New(2, 10*time.Second, WithClock(clock.Now))

	require.True(t, l.Admit(1))
	require.True(t, l.Admit(1))
	for i := 0; i < 5; i++ {
		require.False(t, l.Admit(1))
	}

	// Only the two accepted events occupy the window; once they age out the
	// user gets the full cap back.
	clock.Advance(10*time.Second + time.Millisecond)
	assert.True(t, l.Admit(1))
	assert.True(t, l.Admit(1))
	assert.False(t, l.Admit(1))
}

func TestAdmitSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(3, 10*time.Second, WithClock(clock.Now))

	require.True(t, l.Admit(7)) // t=0
	clock.Advance(4 * time.Second)
	require.True(t, l.Admit(7)) // t=4
	clock.Advance(4 * time.Second)
	require.True(t, l.Admit(7)) // t=8
	clock.Advance(time.Second)
	require.False(t, l.Admit(7)) // t=9, three in window

	clock.Advance(1500 * time.Millisecond)
	assert.True(t, l.Admit(7), "t=10.5: the t=0 event left the window")
	assert.False(t, l.Admit(7))
}

func TestAdmitNeverExceedsCapInAnyWindow(t *testing.T) {
	clock := newFakeClock()
	const (
		max    = 6
		window = 10 * time.Second
	)
	l := New(max, window, WithClock(clock.Now))

	var accepted []time.Time
	steps := []time.Duration{0, 300, 700, 1100, 50, 2000, 900, 4000, 100, 100, 3500, 6000, 10, 10, 10, 2500}
	for round := 0; round < 5; round++ {
		for _, ms := range steps {
			clock.Advance(ms * time.Millisecond)
			if l.Admit(3) {
				accepted = append(accepted, clock.Now())
			}
		}
	}

	for i, start := range accepted {
		count := 0
		for _, ts := range accepted[i:] {
			if ts.Sub(start) < window {
				count++
			}
		}
		require.LessOrEqual(t, count, max, "window starting at %v", start)
	}
}

func TestAdmitIsolatesUsers(t *testing.T) {
	clock := newFakeClock()
	l := New(1, time.Minute, WithClock(clock.Now))

	assert.True(t, l.Admit(1))
	assert.False(t, l.Admit(1))
	assert.True(t, l.Admit(2))
}

func TestAdmitConcurrentSameUser(t *testing.T) {
	l := New(6, time.Hour)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(42) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(6), accepted.Load())
}

func TestDisabledLimiterAdmitsEverything(t *testing.T) {
	l := New(0, 10*time.Second)
	for i := 0; i < 100; i++ {
		require.True(t, l.Admit(1))
	}
	assert.Equal(t, 0, l.Len())
}

func TestPruneRemovesIdleUsers(t *testing.T) {
	clock := newFakeClock()
	l := New(6, 10*time.Second, WithClock(clock.Now))

	l.Admit(1)
	clock.Advance(6 * time.Second)
	l.Admit(2)
	clock.Advance(6 * time.Second)

	assert.False(t, l.Active(1))
	assert.True(t, l.Active(2))
	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Len())
}
