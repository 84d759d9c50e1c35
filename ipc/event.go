// File: ipc/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event: a standalone waitable whose user signals are raised and lowered by
// the program itself. Useful as a cross-goroutine doorbell that ports can
// watch like any other object.

package ipc

import (
	"sync"

	"github.com/momentics/hioload-ipc/api"
)

// Event is a waitable carrier of user signals.
type Event struct {
	mu      sync.Mutex
	sig     Signals
	watches watchSet
	closed  bool
}

// NewEvent creates an event with no signals asserted.
func NewEvent() *Event {
	return &Event{}
}

var _ Waitable = (*Event)(nil)

// Signals returns the currently asserted signal set.
func (e *Event) Signals() Signals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sig
}

// SignalUser clears then sets user signals. Both masks must lie within
// SignalUserAll; anything else returns api.ErrInvalidArgument. Newly
// asserted bits complete matching port watches.
func (e *Event) SignalUser(set, clear Signals) error {
	if set&^SignalUserAll != 0 || clear&^SignalUserAll != 0 {
		return api.ErrInvalidArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return api.ErrBadHandle
	}
	old := e.sig
	e.sig &^= clear
	e.sig |= set
	if e.sig&^old != 0 {
		e.watches.fire(e.sig, 1)
	}
	return nil
}

func (e *Event) watch(p *Port, key uint64, mask Signals) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return api.ErrBadHandle
	}
	if e.sig.Has(mask) {
		p.deliverSignal(key, e.sig, 1)
		return nil
	}
	e.watches.add(key, p, mask)
	return nil
}

func (e *Event) unwatch(key uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watches.remove(key)
}

// Close drops all pending watches without completing them.
func (e *Event) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.watches.clear()
	return nil
}
