// File: dispatch/wait.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One-shot readiness waits. The loop owns the registration; the caller gets
// a *Wait back as a cancellation token. A cancel racing an in-flight
// dispatch on another worker loses cleanly: whichever side removes the
// registration first wins, the other observes api.ErrNotFound, and the
// handler never runs twice.

package dispatch

import (
	"sync/atomic"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
)

// WaitHandler consumes a readiness completion. err is nil on delivery and
// api.ErrCanceled when the loop shut down with the wait still pending; in
// the latter case observed and count are zero.
type WaitHandler func(l *Loop, w *Wait, err error, observed ipc.Signals, count uint64)

// Wait is a pending readiness registration and its cancellation token.
type Wait struct {
	loop    *Loop
	key     uint64
	obj     ipc.Waitable
	mask    ipc.Signals
	handler WaitHandler

	// Guarded by loop.mu.
	finished bool
	err      error
	done     chan struct{}
}

var _ api.Cancelable = (*Wait)(nil)

// Object returns the object being watched.
func (w *Wait) Object() ipc.Waitable { return w.obj }

// Mask returns the signal mask of the registration.
func (w *Wait) Mask() ipc.Signals { return w.mask }

// Cancel revokes the registration; see Loop.CancelWait.
func (w *Wait) Cancel() error { return w.loop.CancelWait(w) }

// Done is closed once the wait reached a terminal state: dispatched,
// canceled or drained. For dispatches it closes after the handler returned.
func (w *Wait) Done() <-chan struct{} { return w.done }

// Err reports how the wait ended: nil for a normal dispatch,
// api.ErrCanceled for cancellation or shutdown, api.ErrBadState before any
// terminal state.
func (w *Wait) Err() error {
	w.loop.mu.Lock()
	defer w.loop.mu.Unlock()
	if !w.finished {
		return api.ErrBadState
	}
	return w.err
}

func (w *Wait) finish(err error) {
	w.loop.mu.Lock()
	w.finishLocked(err)
	w.loop.mu.Unlock()
}

func (w *Wait) finishLocked(err error) {
	if w.finished {
		return
	}
	w.finished = true
	w.err = err
	close(w.done)
}

// BeginWait registers interest in the masked signals of obj. The handler
// runs on a loop worker exactly once: with the observed signals when they
// assert, or with api.ErrCanceled if the loop shuts down first. Fails with
// api.ErrBadState after shutdown; errors from arming the watch (closed
// object, nil object, empty mask) surface verbatim.
func (l *Loop) BeginWait(obj ipc.Waitable, mask ipc.Signals, handler WaitHandler) (*Wait, error) {
	if handler == nil {
		return nil, api.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Shutdown {
		return nil, api.ErrBadState
	}
	w := &Wait{
		loop:    l,
		key:     l.nextKey,
		obj:     obj,
		mask:    mask,
		handler: handler,
		done:    make(chan struct{}),
	}
	l.nextKey++
	l.waits[w.key] = w
	if err := l.port.WaitAsync(obj, w.key, mask); err != nil {
		delete(l.waits, w.key)
		return nil, err
	}
	return w, nil
}

// CancelWait revokes a pending wait so its handler will not run. Returns
// api.ErrNotFound when the wait is not pending anymore: already dispatched
// on another worker, already canceled, or drained. That outcome is the
// normal resolution of a cancel/dispatch race, not a fault.
func (l *Loop) CancelWait(w *Wait) error {
	if w == nil || w.loop != l {
		return api.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.waits[w.key]; !ok {
		return api.ErrNotFound
	}
	delete(l.waits, w.key)
	l.port.Cancel(w.obj, w.key)
	w.finishLocked(api.ErrCanceled)
	return nil
}

// dispatchSignal completes the wait a signal packet belongs to. A missing
// registration means a cancel won the race after the packet was already
// popped; the packet is dropped.
func (l *Loop) dispatchSignal(pkt ipc.Packet) {
	l.mu.Lock()
	w, ok := l.waits[pkt.Key]
	if ok {
		delete(l.waits, pkt.Key)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	atomic.AddUint64(&l.nSignals, 1)
	w.handler(l, w, nil, pkt.Observed, pkt.Count)
	w.finish(nil)
}
