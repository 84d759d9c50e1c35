// File: pump/pump.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The pump serializes per-channel dispatch on top of the loop's one-shot
// waits. Reads happen under the pump lock; handler invocations never do.
// A generation counter stamps every armed wait, so completions that lose a
// race against Unbind or a rebind find a stale generation and back off
// without touching the new binding.

package pump

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/dispatch"
	"github.com/momentics/hioload-ipc/ipc"
)

// DefaultReadBatch bounds how many messages one readiness notification may
// drain before the worker is yielded back to the loop.
const DefaultReadBatch = 16

// Handler consumes one inbound message. The message is only valid for the
// duration of the call; retain data by copying. The disposition steers the
// pump: Continue keeps listening, Stop pauses the pump until Resume,
// ConsumedSelf promises the handler has already unbound or destroyed the
// pump and makes the dispatch path return without touching it. A non-nil
// error tears the binding down, except api.ErrShouldWait which is treated
// as backpressure: stop draining, stay bound, wait for the next readiness.
type Handler func(m *ipc.Message) (api.Disposition, error)

// ErrorFunc observes the single teardown error of a binding: peer closure
// (api.ErrPeerClosed), loop shutdown (api.ErrCanceled), or a handler or
// transport failure.
type ErrorFunc func(err error)

// Stats is a snapshot of pump activity.
type Stats struct {
	Bound      bool
	Dispatched uint64
	Teardowns  uint64
}

// Pump owns one channel endpoint and pumps its messages into a handler.
type Pump struct {
	loop      *dispatch.Loop
	handler   Handler
	onError   ErrorFunc
	readBatch int

	mu   sync.Mutex
	ch   *ipc.Channel
	wait *dispatch.Wait
	gen  uint64

	nDispatched uint64
	nTeardowns  uint64
}

// Option configures a Pump.
type Option func(*Pump)

// WithReadBatch overrides DefaultReadBatch; n < 1 is clamped to 1.
func WithReadBatch(n int) Option {
	return func(p *Pump) {
		if n < 1 {
			n = 1
		}
		p.readBatch = n
	}
}

// WithErrorFunc installs the teardown observer.
func WithErrorFunc(f ErrorFunc) Option {
	return func(p *Pump) { p.onError = f }
}

// New creates an unbound pump dispatching through loop into handler.
func New(loop *dispatch.Loop, handler Handler, opts ...Option) *Pump {
	p := &Pump{
		loop:      loop,
		handler:   handler,
		readBatch: DefaultReadBatch,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsBound reports whether the pump currently owns a channel.
func (p *Pump) IsBound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch != nil
}

// Channel returns the bound channel without transferring ownership, or nil.
func (p *Pump) Channel() *ipc.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch
}

// Stats returns a snapshot of pump activity.
func (p *Pump) Stats() Stats {
	p.mu.Lock()
	bound := p.ch != nil
	p.mu.Unlock()
	return Stats{
		Bound:      bound,
		Dispatched: atomic.LoadUint64(&p.nDispatched),
		Teardowns:  atomic.LoadUint64(&p.nTeardowns),
	}
}

// Bind takes ownership of ch and starts listening. A previously bound
// channel is implicitly unbound and closed first. If arming the readiness
// wait fails the pump closes ch, stays unbound and returns the error.
func (p *Pump) Bind(ch *ipc.Channel) error {
	if ch == nil || p.handler == nil {
		return api.ErrInvalidArgument
	}
	if old := p.Unbind(); old != nil {
		old.Close()
	}

	p.mu.Lock()
	p.ch = ch
	p.gen++
	err := p.armLocked()
	if err != nil {
		p.ch = nil
		p.wait = nil
	}
	p.mu.Unlock()
	if err != nil {
		ch.Close()
	}
	return err
}

// Unbind stops listening and returns the channel to the caller, or nil if
// the pump was not bound. Idempotent. A dispatch racing on another worker
// observes the bumped generation and backs off.
func (p *Pump) Unbind() *ipc.Channel {
	p.mu.Lock()
	ch := p.ch
	wait := p.wait
	p.ch = nil
	p.wait = nil
	p.gen++
	p.mu.Unlock()

	if wait != nil {
		// ErrNotFound here means the completion already dispatched; the
		// generation bump neutralizes it.
		p.loop.CancelWait(wait)
	}
	return ch
}

// Resume re-arms the readiness wait after a handler returned Stop. Fails
// with api.ErrBadState when the pump is not bound.
func (p *Pump) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return api.ErrBadState
	}
	if p.wait != nil {
		return nil
	}
	return p.armLocked()
}

// Write sends one message on the bound channel; api.ErrBadState when
// unbound. Channel errors surface verbatim.
func (p *Pump) Write(msg ipc.Message) error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		return api.ErrBadState
	}
	return ch.Write(msg)
}

// armLocked arms the single outstanding readiness wait. Caller holds p.mu.
func (p *Pump) armLocked() error {
	gen := p.gen
	w, err := p.loop.BeginWait(p.ch, ipc.SignalReadable|ipc.SignalPeerClosed,
		func(_ *dispatch.Loop, _ *dispatch.Wait, err error, _ ipc.Signals, count uint64) {
			p.dispatch(gen, err, count)
		})
	if err != nil {
		return err
	}
	p.wait = w
	return nil
}

// dispatch services one readiness completion for the binding stamped gen.
func (p *Pump) dispatch(gen uint64, waitErr error, count uint64) {
	p.mu.Lock()
	if p.gen != gen || p.ch == nil {
		p.mu.Unlock()
		return
	}
	p.wait = nil
	if waitErr != nil {
		// Loop shut down with the wait pending.
		p.teardownLocked(waitErr)
		return
	}

	batch := uint64(p.readBatch)
	if count < 1 {
		count = 1
	}
	if count > batch {
		count = batch
	}
	for i := uint64(0); i < count; i++ {
		m, err := p.ch.ReadMessage()
		if err != nil {
			if errors.Is(err, api.ErrShouldWait) {
				break
			}
			p.teardownLocked(err)
			return
		}
		p.mu.Unlock()

		atomic.AddUint64(&p.nDispatched, 1)
		disp, herr := p.handler(m)
		m.Release()

		if disp == api.ConsumedSelf {
			return
		}
		p.mu.Lock()
		if p.gen != gen || p.ch == nil {
			// Handler unbound or rebound us.
			p.mu.Unlock()
			return
		}
		if herr != nil {
			if errors.Is(herr, api.ErrShouldWait) {
				break
			}
			p.teardownLocked(herr)
			return
		}
		if disp == api.Stop {
			p.mu.Unlock()
			return
		}
	}

	if err := p.armLocked(); err != nil {
		if errors.Is(err, api.ErrBadState) {
			// Loop shut down between dispatch and re-arm.
			err = api.ErrCanceled
		}
		p.teardownLocked(err)
		return
	}
	p.mu.Unlock()
}

// teardownLocked unbinds, closes the channel and reports err through the
// error callback. Called with p.mu held; releases it.
func (p *Pump) teardownLocked(err error) {
	ch := p.ch
	wait := p.wait
	p.ch = nil
	p.wait = nil
	p.gen++
	atomic.AddUint64(&p.nTeardowns, 1)
	onError := p.onError
	p.mu.Unlock()

	if wait != nil {
		p.loop.CancelWait(wait)
	}
	if ch != nil {
		ch.Close()
	}
	if onError != nil {
		onError(err)
	}
}
