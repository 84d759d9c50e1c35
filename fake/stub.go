// File: fake/stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scripted rpc.Stub for exercising controllers without real services.

package fake

import (
	"sync"

	"github.com/momentics/hioload-ipc/rpc"
)

// StubCall is one recorded inbound call.
type StubCall struct {
	Ordinal uint64
	Txid    uint32
	Payload []byte
}

// Stub records every call a StubController dispatches to it and replies
// according to its script: a per-ordinal payload, an echo of the request,
// or nothing. The zero value records and stays silent.
type Stub struct {
	mu      sync.Mutex
	calls   []StubCall
	replies map[uint64][]byte
	echo    bool
	err     error
}

// NewStub creates an empty scripted stub.
func NewStub() *Stub {
	return &Stub{replies: make(map[uint64][]byte)}
}

// ScriptReply makes calls with the given ordinal answer with payload.
func (s *Stub) ScriptReply(ordinal uint64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replies == nil {
		s.replies = make(map[uint64][]byte)
	}
	s.replies[ordinal] = append([]byte(nil), payload...)
}

// SetEcho makes unscripted calls reply with the request payload.
func (s *Stub) SetEcho(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo = on
}

// SetDispatchError makes every dispatch fail with err, tearing down the
// controller binding.
func (s *Stub) SetDispatchError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// DispatchCall implements rpc.Stub.
func (s *Stub) DispatchCall(req *rpc.Request, r *rpc.Responder) error {
	s.mu.Lock()
	s.calls = append(s.calls, StubCall{
		Ordinal: req.Header.Ordinal,
		Txid:    req.Header.Txid,
		Payload: append([]byte(nil), req.Payload...),
	})
	reply, scripted := s.replies[req.Header.Ordinal]
	echo := s.echo
	err := s.err
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	if scripted {
		return r.Reply(reply, nil)
	}
	if echo {
		return r.Reply(append([]byte(nil), req.Payload...), nil)
	}
	return nil
}

// Calls returns a copy of every recorded call in dispatch order.
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of dispatched calls so far.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
