// File: rpc/proxy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client-side controller: transaction identifier assignment, the pending
// call table, and reply/event routing. One Proxy wraps one message pump;
// all its methods are safe for concurrent use, including from handlers
// running on the dispatch loop.

package rpc

import (
	"context"
	"sync"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/dispatch"
	"github.com/momentics/hioload-ipc/ipc"
	"github.com/momentics/hioload-ipc/pump"
)

// ResponseFunc consumes the reply to one call. It is invoked at most once,
// with the table entry already removed. A non-nil error tears the binding
// down.
type ResponseFunc func(req *Request) error

// EventFunc consumes unsolicited inbound messages: txid zero, or a txid
// matching no pending call. A non-nil error tears the binding down.
type EventFunc func(req *Request) error

type pendingCall struct {
	fn ResponseFunc
	// cancel, when set, tells a blocked Call that its entry was swept by
	// Reset and no reply will ever come. The response handler itself is
	// never invoked on that path.
	cancel func()
}

// Proxy is the client side of an RPC channel.
type Proxy struct {
	pump *pump.Pump

	mu       sync.Mutex
	onEvent  EventFunc
	onError  pump.ErrorFunc
	nextTxid uint32
	table    map[uint32]pendingCall
}

// NewProxy creates an unbound proxy dispatching on l.
func NewProxy(l *dispatch.Loop) *Proxy {
	p := &Proxy{table: make(map[uint32]pendingCall)}
	p.pump = pump.New(l, p.inbound, pump.WithErrorFunc(p.teardown))
	return p
}

// SetEventFunc installs the handler for unsolicited messages. Without one,
// events are discarded and their handles closed.
func (p *Proxy) SetEventFunc(f EventFunc) {
	p.mu.Lock()
	p.onEvent = f
	p.mu.Unlock()
}

// SetErrorFunc installs the callback invoked once per binding after the
// channel errors or closes, with pending calls already reset.
func (p *Proxy) SetErrorFunc(f pump.ErrorFunc) {
	p.mu.Lock()
	p.onError = f
	p.mu.Unlock()
}

// Bind attaches the proxy to ch. A previously bound channel is closed.
func (p *Proxy) Bind(ch *ipc.Channel) error {
	return p.pump.Bind(ch)
}

// Unbind detaches and returns the channel, destroying pending response
// handlers without invoking them. Blocked Calls complete with
// api.ErrCanceled.
func (p *Proxy) Unbind() *ipc.Channel {
	ch := p.pump.Unbind()
	p.Reset()
	return ch
}

// IsBound reports whether a channel is currently attached.
func (p *Proxy) IsBound() bool { return p.pump.IsBound() }

// Pending returns the number of calls still waiting for a reply.
func (p *Proxy) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.table)
}

// Send writes one call. With a nil respFn the message goes out with the
// no-reply sentinel identifier. Otherwise the next identifier is assigned,
// respFn is entered into the pending table, and a write failure removes
// the entry again before the error returns.
func (p *Proxy) Send(ordinal uint64, payload []byte, handles []ipc.Handle, respFn ResponseFunc) error {
	_, err := p.send(ordinal, payload, handles, respFn, nil)
	return err
}

func (p *Proxy) send(ordinal uint64, payload []byte, handles []ipc.Handle, respFn ResponseFunc, cancel func()) (uint32, error) {
	h := Header{Magic: MagicV1, Ordinal: ordinal}
	p.mu.Lock()
	if respFn != nil {
		p.nextTxid++
		if p.nextTxid > MaxUserTxid {
			p.nextTxid = 1
		}
		h.Txid = p.nextTxid
		p.table[h.Txid] = pendingCall{fn: respFn, cancel: cancel}
	}
	err := p.pump.Write(NewMessage(h, payload, handles))
	if err != nil && h.Txid != NoTxid {
		delete(p.table, h.Txid)
	}
	p.mu.Unlock()
	return h.Txid, err
}

// Call sends and waits for the reply. The returned message owns its
// payload copy and any transferred handles. Context cancellation abandons
// the pending entry; binding teardown completes the call with
// api.ErrCanceled.
func (p *Proxy) Call(ctx context.Context, ordinal uint64, payload []byte, handles []ipc.Handle) (*ipc.Message, error) {
	replyCh := make(chan *ipc.Message, 1)
	swept := make(chan struct{})
	respFn := func(req *Request) error {
		reply := &ipc.Message{Handles: req.Handles}
		if len(req.Payload) > 0 {
			reply.Bytes = append([]byte(nil), req.Payload...)
		}
		replyCh <- reply
		return nil
	}
	txid, err := p.send(ordinal, payload, handles, respFn, func() { close(swept) })
	if err != nil {
		return nil, err
	}
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-swept:
		return nil, api.ErrCanceled
	case <-ctx.Done():
		if p.abandon(txid) {
			return nil, ctx.Err()
		}
		// Entry already gone: either dispatch claimed it and the reply
		// is about to land, or a sweep fired cancel. Wait out whichever
		// so the reply's handles are not dropped on the floor.
		select {
		case reply := <-replyCh:
			reply.Discard()
		case <-swept:
		}
		return nil, ctx.Err()
	}
}

func (p *Proxy) abandon(txid uint32) bool {
	p.mu.Lock()
	_, ok := p.table[txid]
	if ok {
		delete(p.table, txid)
	}
	p.mu.Unlock()
	return ok
}

// Reset destroys all pending response handlers without invoking them and
// restarts identifier assignment. It runs automatically when the channel
// errors or closes.
func (p *Proxy) Reset() {
	p.mu.Lock()
	orphans := p.table
	p.table = make(map[uint32]pendingCall)
	p.nextTxid = 0
	p.mu.Unlock()
	for _, pc := range orphans {
		if pc.cancel != nil {
			pc.cancel()
		}
	}
}

func (p *Proxy) inbound(m *ipc.Message) (api.Disposition, error) {
	req, err := decodeRequest(m)
	if err != nil {
		// Handles on a garbled message would otherwise never close.
		m.Discard()
		return api.Continue, err
	}
	if req.Header.Txid != NoTxid {
		p.mu.Lock()
		pc, ok := p.table[req.Header.Txid]
		if ok {
			delete(p.table, req.Header.Txid)
		}
		p.mu.Unlock()
		if ok {
			return api.Continue, pc.fn(req)
		}
	}
	p.mu.Lock()
	ev := p.onEvent
	p.mu.Unlock()
	if ev == nil {
		m.Discard()
		return api.Continue, nil
	}
	return api.Continue, ev(req)
}

func (p *Proxy) teardown(err error) {
	p.Reset()
	p.mu.Lock()
	f := p.onError
	p.mu.Unlock()
	if f != nil {
		f(err)
	}
}
