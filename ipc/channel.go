// File: ipc/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bidirectional, ordered, message-oriented channel endpoints.
//
// Both endpoints of a pair share one mutex: every operation observes a
// consistent snapshot of both sides, which is what makes the "peer closed is
// visible only after the backlog drains" rule cheap to enforce.

package ipc

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/pool"
)

// Channel is one endpoint of a bidirectional message channel.
type Channel struct {
	shared *pairShared
	peer   *Channel

	// Guarded by shared.mu.
	inbound *queue.Queue // of *Message
	watches watchSet
	sig     Signals
	closed  bool
}

type pairShared struct {
	mu sync.Mutex
}

// NewChannelPair creates two connected endpoints. Closing either endpoint
// asserts SignalPeerClosed on the other.
func NewChannelPair() (*Channel, *Channel) {
	sh := &pairShared{}
	a := &Channel{shared: sh, inbound: queue.New(), sig: SignalWritable}
	b := &Channel{shared: sh, inbound: queue.New(), sig: SignalWritable}
	a.peer, b.peer = b, a
	return a, b
}

// Write enqueues one discrete message on the peer endpoint. The payload is
// copied into a pooled buffer, so the caller keeps ownership of msg.Bytes.
// Handles are transferred on success and closed when the peer is gone; on
// validation errors (size or handle-count limits, closed local endpoint)
// they remain with the caller.
func (c *Channel) Write(msg Message) error {
	if len(msg.Bytes) > MaxMessageBytes {
		return api.ErrMsgTooBig
	}
	if len(msg.Handles) > MaxMessageHandles {
		return api.ErrTooManyHandles
	}

	c.shared.mu.Lock()
	if c.closed {
		c.shared.mu.Unlock()
		return api.ErrBadHandle
	}
	if c.peer.closed {
		c.shared.mu.Unlock()
		// The message has nowhere to go; its handles are consumed.
		for _, h := range msg.Handles {
			if h != nil {
				h.Close()
			}
		}
		return api.ErrPeerClosed
	}

	m := &Message{}
	if len(msg.Bytes) > 0 {
		b := pool.Default.GetBuffer(len(msg.Bytes))
		copy(b, msg.Bytes)
		m.Bytes = b
		m.pooled = true
	}
	if len(msg.Handles) > 0 {
		m.Handles = append([]Handle(nil), msg.Handles...)
	}
	c.peer.inbound.Add(m)
	c.peer.sig |= SignalReadable
	c.peer.watches.fire(c.peer.sig, uint64(c.peer.inbound.Length()))
	c.shared.mu.Unlock()
	return nil
}

// Read copies the next message into buf and handles, all-or-nothing.
// api.ErrBufferTooSmall leaves the message queued and unconsumed. An empty
// queue reads as api.ErrShouldWait while the peer is open and as
// api.ErrPeerClosed only once every buffered message has been drained.
func (c *Channel) Read(buf []byte, handles []Handle) (nb, nh int, err error) {
	c.shared.mu.Lock()
	m, err := c.nextLocked()
	if err != nil {
		c.shared.mu.Unlock()
		return 0, 0, err
	}
	if len(m.Bytes) > len(buf) || len(m.Handles) > len(handles) {
		c.shared.mu.Unlock()
		return 0, 0, api.ErrBufferTooSmall
	}
	c.consumeLocked()
	c.shared.mu.Unlock()

	nb = copy(buf, m.Bytes)
	nh = copy(handles, m.Handles)
	m.Release()
	return nb, nh, nil
}

// ReadMessage pops the next message whole. The returned message is
// pool-backed; callers should Release it when done. Error behavior matches
// Read, minus the buffer-size case.
func (c *Channel) ReadMessage() (*Message, error) {
	c.shared.mu.Lock()
	m, err := c.nextLocked()
	if err != nil {
		c.shared.mu.Unlock()
		return nil, err
	}
	c.consumeLocked()
	c.shared.mu.Unlock()
	return m, nil
}

// nextLocked peeks the head message without consuming it.
func (c *Channel) nextLocked() (*Message, error) {
	if c.closed {
		return nil, api.ErrBadHandle
	}
	if c.inbound.Length() == 0 {
		if c.peer.closed {
			return nil, api.ErrPeerClosed
		}
		return nil, api.ErrShouldWait
	}
	return c.inbound.Peek().(*Message), nil
}

// consumeLocked pops the head message and maintains SignalReadable.
func (c *Channel) consumeLocked() {
	c.inbound.Remove()
	if c.inbound.Length() == 0 {
		c.sig &^= SignalReadable
	}
}

// Queued returns the number of buffered inbound messages.
func (c *Channel) Queued() int {
	c.shared.mu.Lock()
	n := c.inbound.Length()
	c.shared.mu.Unlock()
	return n
}

// Signals returns the currently asserted signal set.
func (c *Channel) Signals() Signals {
	c.shared.mu.Lock()
	s := c.sig
	c.shared.mu.Unlock()
	return s
}

// Close shuts this endpoint down: queued inbound messages are destroyed
// (their handles closed), local watches are dropped, and the peer observes
// SignalPeerClosed. Close is idempotent.
func (c *Channel) Close() error {
	c.shared.mu.Lock()
	if c.closed {
		c.shared.mu.Unlock()
		return nil
	}
	c.closed = true
	c.sig = SignalNone
	c.watches.clear()

	var garbage []*Message
	for c.inbound.Length() > 0 {
		garbage = append(garbage, c.inbound.Remove().(*Message))
	}
	if p := c.peer; !p.closed {
		p.sig = (p.sig &^ SignalWritable) | SignalPeerClosed
		p.watches.fire(p.sig, uint64(p.inbound.Length()))
	}
	c.shared.mu.Unlock()

	// Destroyed messages may carry channel handles whose Close re-enters
	// another pair's lock; do it outside ours.
	for _, m := range garbage {
		m.Discard()
	}
	return nil
}

func (c *Channel) watch(p *Port, key uint64, mask Signals) error {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if c.closed {
		return api.ErrBadHandle
	}
	if c.sig.Has(mask) {
		p.deliverSignal(key, c.sig, uint64(c.inbound.Length()))
		return nil
	}
	c.watches.add(key, p, mask)
	return nil
}

func (c *Channel) unwatch(key uint64) bool {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	return c.watches.remove(key)
}

var _ Waitable = (*Channel)(nil)
