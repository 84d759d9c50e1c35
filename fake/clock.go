// File: fake/clock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Manually advanced clock. Timers fire synchronously inside Advance, so a
// test controls exactly when deadline-driven code observes the passage of
// time.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-ipc/api"
)

// Clock implements api.Clock with a hand-cranked current time.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewClock creates a clock standing at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and fires every timer whose expiry has
// been reached.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*fakeTimer
	for _, t := range c.timers {
		if t.armed && !t.at.After(now) {
			t.armed = false
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		select {
		case t.ch <- now:
		default:
		}
	}
}

// NewTimer arms a fake timer d from now.
func (c *Clock) NewTimer(d time.Duration) api.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{
		clock: c,
		ch:    make(chan time.Time, 1),
		at:    c.now.Add(d),
		armed: true,
	}
	c.timers = append(c.timers, t)
	return t
}

type fakeTimer struct {
	clock *Clock
	ch    chan time.Time

	// Guarded by clock.mu.
	at    time.Time
	armed bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Reset(d time.Duration) bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	was := t.armed
	t.at = c.now.Add(d)
	t.armed = true
	return was
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	was := t.armed
	t.armed = false
	return was
}
