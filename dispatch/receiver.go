// File: dispatch/receiver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Packet receivers: out-of-band user events dispatched like completions.
// A Receiver is persistent; every queued packet invokes its handler once.
// The receiver travels inside the packet itself, so queueing needs no
// registration and no lookup table.

package dispatch

import (
	"sync/atomic"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
)

// The key under which receiver packets ride the port; distinct from the
// control key so quit wake-ups are never mistaken for user packets.
const keyReceiver = ipc.KeyControl + 1

// PacketHandler consumes one queued packet.
type PacketHandler func(l *Loop, r *Receiver, user any)

// Receiver dispatches queued user packets. Declare one per logical event
// source and queue any number of packets against it.
type Receiver struct {
	handler PacketHandler
}

// NewReceiver creates a receiver around handler.
func NewReceiver(handler PacketHandler) *Receiver {
	return &Receiver{handler: handler}
}

type queuedPacket struct {
	recv *Receiver
	user any
}

// QueuePacket enqueues a user event carrying user for r, FIFO with respect
// to other queued packets. The handler runs on a loop worker. Packets still
// queued at shutdown are dropped, not drained. Fails with api.ErrBadState
// after shutdown.
func (l *Loop) QueuePacket(r *Receiver, user any) error {
	if r == nil || r.handler == nil {
		return api.ErrInvalidArgument
	}
	l.mu.Lock()
	if l.state == Shutdown {
		l.mu.Unlock()
		return api.ErrBadState
	}
	l.mu.Unlock()
	return l.port.Queue(ipc.Packet{
		Kind: ipc.PacketUser,
		Key:  keyReceiver,
		User: queuedPacket{recv: r, user: user},
	})
}

func (l *Loop) dispatchReceiver(pkt ipc.Packet) {
	qp, ok := pkt.User.(queuedPacket)
	if !ok {
		return
	}
	atomic.AddUint64(&l.nPackets, 1)
	qp.recv.handler(l, qp.recv, qp.user)
}
