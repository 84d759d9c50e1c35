// File: dispatch/bell.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bell bindings: persistent doorbell sources multiplexed through the loop.
// Unlike waits a binding stays armed across deliveries; every ring invokes
// the handler once with the rung address.

package dispatch

import (
	"sync/atomic"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
)

// BellHandler consumes one ring. err is nil on delivery and
// api.ErrCanceled when the loop shut down with the binding still armed; in
// that case addr is zero.
type BellHandler func(l *Loop, b *BellBinding, err error, addr uint64)

// BellBinding ties one bell to the loop.
type BellBinding struct {
	loop    *Loop
	key     uint64
	bell    *ipc.Bell
	handler BellHandler
}

// Bell returns the bound bell.
func (b *BellBinding) Bell() *ipc.Bell { return b.bell }

// RegisterBell attaches bell to the loop's port and routes its rings to
// handler until UnregisterBell or shutdown. Fails with api.ErrBadState
// after shutdown and surfaces attach errors (already attached, closed
// bell) verbatim.
func (l *Loop) RegisterBell(bell *ipc.Bell, handler BellHandler) (*BellBinding, error) {
	if bell == nil || handler == nil {
		return nil, api.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Shutdown {
		return nil, api.ErrBadState
	}
	bb := &BellBinding{loop: l, key: l.nextKey, bell: bell, handler: handler}
	if err := bell.Attach(l.port, bb.key); err != nil {
		return nil, err
	}
	l.nextKey++
	l.bells[bb.key] = bb
	return bb, nil
}

// UnregisterBell detaches the binding. Rings already queued on the port are
// dropped at dispatch. Returns api.ErrNotFound when the binding is not
// registered anymore.
func (l *Loop) UnregisterBell(bb *BellBinding) error {
	if bb == nil || bb.loop != l {
		return api.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bells[bb.key]; !ok {
		return api.ErrNotFound
	}
	delete(l.bells, bb.key)
	bb.bell.Detach()
	return nil
}

func (l *Loop) dispatchBell(pkt ipc.Packet) {
	l.mu.Lock()
	bb := l.bells[pkt.Key]
	l.mu.Unlock()
	if bb == nil {
		return
	}
	atomic.AddUint64(&l.nBells, 1)
	bb.handler(l, bb, nil, pkt.Addr)
}
