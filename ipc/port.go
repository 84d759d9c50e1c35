// File: ipc/port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion port: the single blocking primitive of the runtime.
//
// Every event family converges on one FIFO of packets. Sleeping waiters are
// woken by a close-and-replace broadcast channel; each recomputes its own
// wake point from the caller deadline and the armed timer, so any number of
// goroutines can block in Wait concurrently and each packet still reaches
// exactly one of them.

package ipc

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-ipc/api"
)

// TimeNever is the deadline that never elapses.
var TimeNever = time.Unix(1<<62-1, 0)

// IsNever reports whether t is the never-elapsing deadline.
func IsNever(t time.Time) bool { return !t.Before(TimeNever) }

// Port is a completion queue over packets.
type Port struct {
	clock api.Clock

	mu      sync.Mutex
	packets *queue.Queue // of Packet
	wake    chan struct{}
	closed  bool

	timerArmed bool
	timerAt    time.Time
}

// PortOption configures a Port.
type PortOption func(*Port)

// WithClock substitutes the time source, mainly for tests.
func WithClock(c api.Clock) PortOption {
	return func(p *Port) { p.clock = c }
}

// NewPort creates an empty port.
func NewPort(opts ...PortOption) *Port {
	p := &Port{
		clock:   api.SystemClock(),
		packets: queue.New(),
		wake:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Clock returns the port's time source.
func (p *Port) Clock() api.Clock { return p.clock }

// wakeAllLocked broadcasts to every sleeping waiter.
func (p *Port) wakeAllLocked() {
	close(p.wake)
	p.wake = make(chan struct{})
}

// deliver appends a packet, dropping it if the port is closed.
func (p *Port) deliver(pkt Packet) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.packets.Add(pkt)
	p.wakeAllLocked()
	p.mu.Unlock()
}

// deliverSignal is the completion path of one-shot object watches.
func (p *Port) deliverSignal(key uint64, observed Signals, count uint64) {
	p.deliver(Packet{Kind: PacketSignal, Key: key, Observed: observed, Count: count})
}

// deliverBell is the delivery path of bell sources.
func (p *Port) deliverBell(key uint64, addr uint64) {
	p.deliver(Packet{Kind: PacketBell, Key: key, Addr: addr})
}

// Queue enqueues a caller-supplied packet, FIFO with respect to other
// queued packets.
func (p *Port) Queue(pkt Packet) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return api.ErrBadHandle
	}
	p.packets.Add(pkt)
	p.wakeAllLocked()
	p.mu.Unlock()
	return nil
}

// WaitAsync arms a one-shot watch: the first assertion of any masked signal
// on obj queues a PacketSignal carrying key, exactly once. If a masked
// signal is already asserted the packet is queued immediately.
func (p *Port) WaitAsync(obj Waitable, key uint64, mask Signals) error {
	if obj == nil || mask == SignalNone {
		return api.ErrInvalidArgument
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return api.ErrBadHandle
	}
	return obj.watch(p, key, mask)
}

// Cancel removes a pending WaitAsync registration for (obj, key) and scrubs
// any signal packets with that key that were queued but not yet delivered.
// It reports whether anything was removed; false means the completion was
// already handed to a waiter.
func (p *Port) Cancel(obj Waitable, key uint64) bool {
	found := false
	if obj != nil {
		found = obj.unwatch(key)
	}
	p.mu.Lock()
	n := p.packets.Length()
	for i := 0; i < n; i++ {
		pkt := p.packets.Remove().(Packet)
		if pkt.Kind == PacketSignal && pkt.Key == key {
			found = true
			continue
		}
		p.packets.Add(pkt)
	}
	p.mu.Unlock()
	return found
}

// SetTimer arms (or re-arms) the port timer. When the deadline passes, one
// PacketTimer keyed KeyTimer is delivered to exactly one waiter. A deadline
// already in the past fires on the next Wait.
func (p *Port) SetTimer(deadline time.Time) {
	p.mu.Lock()
	if !p.closed {
		p.timerArmed = true
		p.timerAt = deadline
		// Sleepers must recompute their wake point.
		p.wakeAllLocked()
	}
	p.mu.Unlock()
}

// ClearTimer disarms the port timer.
func (p *Port) ClearTimer() {
	p.mu.Lock()
	p.timerArmed = false
	p.mu.Unlock()
}

// Wait blocks until a packet is available or deadline passes, whichever is
// first. A deadline in the past polls: an available packet is still
// returned, otherwise api.ErrTimedOut. Pass TimeNever to wait forever.
func (p *Port) Wait(deadline time.Time) (Packet, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return Packet{}, api.ErrBadHandle
		}
		if p.packets.Length() > 0 {
			pkt := p.packets.Remove().(Packet)
			p.mu.Unlock()
			return pkt, nil
		}
		now := p.clock.Now()
		if p.timerArmed && !p.timerAt.After(now) {
			p.timerArmed = false
			p.mu.Unlock()
			return Packet{Kind: PacketTimer, Key: KeyTimer}, nil
		}
		if !now.Before(deadline) {
			p.mu.Unlock()
			return Packet{}, api.ErrTimedOut
		}
		wakeAt := deadline
		if p.timerArmed && p.timerAt.Before(wakeAt) {
			wakeAt = p.timerAt
		}
		wakeCh := p.wake
		p.mu.Unlock()

		if IsNever(wakeAt) {
			<-wakeCh
			continue
		}
		t := p.clock.NewTimer(wakeAt.Sub(now))
		select {
		case <-wakeCh:
			t.Stop()
		case <-t.C():
		}
	}
}

// Close shuts the port down. Blocked waiters return api.ErrBadHandle;
// undelivered packets are dropped; later deliveries are ignored.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.timerArmed = false
	for p.packets.Length() > 0 {
		p.packets.Remove()
	}
	p.wakeAllLocked()
	p.mu.Unlock()
	return nil
}
