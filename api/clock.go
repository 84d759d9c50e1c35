// File: api/clock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Clock abstraction for timer-driven components. Production code uses the
// system clock; tests substitute a manually advanced fake so deadline logic
// runs deterministically.

package api

import "time"

// Clock supplies the current time and timers to the port and loop.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a timer that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer is the minimal surface of a one-shot timer.
type Timer interface {
	// C returns the channel the expiry is delivered on.
	C() <-chan time.Time

	// Reset re-arms the timer for d, reporting whether it was still armed.
	Reset(d time.Duration) bool

	// Stop disarms the timer, reporting whether it was still armed. Stop
	// does not drain C; callers that reuse a timer must do that themselves.
	Stop() bool
}

// SystemClock returns the process-wide real-time clock.
func SystemClock() Clock { return sysClock{} }

type sysClock struct{}

func (sysClock) Now() time.Time                 { return time.Now() }
func (sysClock) NewTimer(d time.Duration) Timer { return sysTimer{time.NewTimer(d)} }

type sysTimer struct{ t *time.Timer }

func (s sysTimer) C() <-chan time.Time        { return s.t.C }
func (s sysTimer) Reset(d time.Duration) bool { return s.t.Reset(d) }
func (s sysTimer) Stop() bool                 { return s.t.Stop() }
