// File: rpc/stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server-side controller and the single-use reply capability. Revocation
// goes through bindingState, interior state shared between the controller
// and every Responder it minted: tearing the binding down flips it once,
// and from then on all reply attempts fail with a canceled status instead
// of reaching a dead channel.

package rpc

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/dispatch"
	"github.com/momentics/hioload-ipc/ipc"
	"github.com/momentics/hioload-ipc/pump"
)

// Stub is the application-supplied dispatch object. DispatchCall receives
// each inbound call; r is nil exactly when the caller expects no reply.
// Request contents are only valid until DispatchCall returns, but r may be
// kept and consumed later from any goroutine. A non-nil error tears the
// binding down.
type Stub interface {
	DispatchCall(req *Request, r *Responder) error
}

// StubFunc adapts a function to the Stub interface.
type StubFunc func(req *Request, r *Responder) error

// DispatchCall invokes f.
func (f StubFunc) DispatchCall(req *Request, r *Responder) error { return f(req, r) }

// bindingState is the revocation point shared by one binding's responders.
// Holding its lock across the write keeps revoke mutually exclusive with
// in-flight replies.
type bindingState struct {
	mu   sync.Mutex
	pump *pump.Pump
}

func (b *bindingState) write(msg ipc.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pump == nil {
		msg.Discard()
		return api.ErrCanceled
	}
	if err := b.pump.Write(msg); err != nil {
		if errors.Is(err, api.ErrBadState) {
			// Teardown beat the revocation to the pump.
			msg.Discard()
			return api.ErrCanceled
		}
		return err
	}
	return nil
}

func (b *bindingState) revoke() {
	b.mu.Lock()
	b.pump = nil
	b.mu.Unlock()
}

// Responder is the reply capability for one call: it writes at most one
// reply carrying the call's transaction identifier. A second use returns
// api.ErrBadState; use after the binding tore down returns api.ErrCanceled.
type Responder struct {
	txid    uint32
	ordinal uint64
	state   *bindingState
	used    int32
}

// Txid returns the transaction identifier the reply will carry.
func (r *Responder) Txid() uint32 { return r.txid }

// Ordinal returns the method selector of the originating call.
func (r *Responder) Ordinal() uint64 { return r.ordinal }

// Reply consumes the responder and writes the reply message. Handles
// transfer to the reply; on a canceled or bad-state outcome they are
// closed rather than leaked.
func (r *Responder) Reply(payload []byte, handles []ipc.Handle) error {
	if !atomic.CompareAndSwapInt32(&r.used, 0, 1) {
		return api.ErrBadState
	}
	h := Header{Txid: r.txid, Magic: MagicV1, Ordinal: r.ordinal}
	return r.state.write(NewMessage(h, payload, handles))
}

// StubController is the server side of an RPC channel. A stub must be set
// before Bind; inbound calls are decoded and handed to it, with a
// Responder when the caller expects a reply.
type StubController struct {
	pump *pump.Pump

	mu      sync.Mutex
	stub    Stub
	onError pump.ErrorFunc
	binding *bindingState
}

// NewStubController creates an unbound controller dispatching on l.
func NewStubController(l *dispatch.Loop) *StubController {
	s := &StubController{}
	s.pump = pump.New(l, s.inbound, pump.WithErrorFunc(s.teardown))
	return s
}

// SetStub installs the dispatch object. It must be set before Bind.
func (s *StubController) SetStub(st Stub) {
	s.mu.Lock()
	s.stub = st
	s.mu.Unlock()
}

// SetErrorFunc installs the callback invoked once per binding after the
// channel errors or closes, with outstanding responders already revoked.
func (s *StubController) SetErrorFunc(f pump.ErrorFunc) {
	s.mu.Lock()
	s.onError = f
	s.mu.Unlock()
}

// Bind attaches the controller to ch. Responders minted under a previous
// binding are revoked; the previous channel is closed.
func (s *StubController) Bind(ch *ipc.Channel) error {
	s.mu.Lock()
	if s.stub == nil {
		s.mu.Unlock()
		return api.ErrBadState
	}
	b := &bindingState{pump: s.pump}
	old := s.binding
	s.binding = b
	s.mu.Unlock()
	if old != nil {
		old.revoke()
	}
	if err := s.pump.Bind(ch); err != nil {
		b.revoke()
		s.mu.Lock()
		if s.binding == b {
			s.binding = nil
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Unbind revokes outstanding responders, detaches and returns the channel.
func (s *StubController) Unbind() *ipc.Channel {
	s.mu.Lock()
	b := s.binding
	s.binding = nil
	s.mu.Unlock()
	if b != nil {
		b.revoke()
	}
	return s.pump.Unbind()
}

// IsBound reports whether a channel is currently attached.
func (s *StubController) IsBound() bool { return s.pump.IsBound() }

func (s *StubController) inbound(m *ipc.Message) (api.Disposition, error) {
	req, err := decodeRequest(m)
	if err != nil {
		m.Discard()
		return api.Continue, err
	}
	s.mu.Lock()
	st := s.stub
	b := s.binding
	s.mu.Unlock()
	if st == nil || b == nil {
		m.Discard()
		return api.Continue, api.ErrBadState
	}
	var r *Responder
	if req.Header.ExpectsReply() {
		r = &Responder{txid: req.Header.Txid, ordinal: req.Header.Ordinal, state: b}
	}
	return api.Continue, st.DispatchCall(req, r)
}

func (s *StubController) teardown(err error) {
	s.mu.Lock()
	b := s.binding
	s.binding = nil
	f := s.onError
	s.mu.Unlock()
	if b != nil {
		b.revoke()
	}
	if f != nil {
		f(err)
	}
}
