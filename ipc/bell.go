// File: ipc/bell.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bell: a doorbell source bound persistently to a port. Unlike object
// watches a bell binding is not one-shot; every Ring delivers one PacketBell
// carrying the rung address. The typical producer is a guest or device
// notifying the loop that a shared-memory region changed.

package ipc

import (
	"sync"

	"github.com/momentics/hioload-ipc/api"
)

// Bell delivers ring notifications to an attached port.
type Bell struct {
	mu     sync.Mutex
	port   *Port
	key    uint64
	closed bool
}

// NewBell creates an unattached bell.
func NewBell() *Bell {
	return &Bell{}
}

// Attach binds the bell to p under key. A bell is bound to at most one port
// at a time; re-attaching without Detach returns api.ErrBadState.
func (b *Bell) Attach(p *Port, key uint64) error {
	if p == nil {
		return api.ErrInvalidArgument
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return api.ErrBadHandle
	}
	if b.port != nil {
		return api.ErrBadState
	}
	b.port = p
	b.key = key
	return nil
}

// Detach unbinds the bell. Rings already delivered to the port stay queued.
func (b *Bell) Detach() {
	b.mu.Lock()
	b.port = nil
	b.mu.Unlock()
}

// Key returns the key the bell is attached under, or 0 when detached.
func (b *Bell) Key() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return 0
	}
	return b.key
}

// Ring queues one PacketBell carrying addr on the attached port.
func (b *Bell) Ring(addr uint64) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return api.ErrBadHandle
	}
	p, key := b.port, b.key
	b.mu.Unlock()
	if p == nil {
		return api.ErrBadState
	}
	p.deliverBell(key, addr)
	return nil
}

// Close detaches the bell and rejects further rings.
func (b *Bell) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.port = nil
	return nil
}
