package rpc_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/dispatch"
	"github.com/momentics/hioload-ipc/fake"
	"github.com/momentics/hioload-ipc/ipc"
	"github.com/momentics/hioload-ipc/rpc"
)

func newIdleLoop(t *testing.T) *dispatch.Loop {
	t.Helper()
	l := dispatch.New(dispatch.WithClock(fake.NewClock(time.Unix(1000, 0))))
	t.Cleanup(l.Shutdown)
	return l
}

type fakeHandle struct {
	closes int32
}

func (h *fakeHandle) Close() error {
	atomic.AddInt32(&h.closes, 1)
	return nil
}

func (h *fakeHandle) closed() bool { return atomic.LoadInt32(&h.closes) > 0 }

// readEnvelope pops one message off ch and decodes its header.
func readEnvelope(t *testing.T, ch *ipc.Channel) (rpc.Header, []byte) {
	t.Helper()
	m, err := ch.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	h, err := rpc.DecodeHeader(m.Bytes)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	payload := append([]byte(nil), m.Bytes[rpc.HeaderSize:]...)
	m.Release()
	return h, payload
}

func TestProxySendAssignsSequentialTxids(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	noop := func(*rpc.Request) error { return nil }

	if err := p.Send(10, []byte("a"), nil, noop); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := p.Send(11, []byte("b"), nil, noop); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := p.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}

	h1, pay1 := readEnvelope(t, peer)
	h2, pay2 := readEnvelope(t, peer)
	if h1.Txid != 1 || h2.Txid != 2 {
		t.Fatalf("txids %d, %d, want 1, 2", h1.Txid, h2.Txid)
	}
	if h1.Magic != rpc.MagicV1 || h1.Ordinal != 10 || string(pay1) != "a" {
		t.Fatalf("first call %+v payload %q", h1, pay1)
	}
	if h2.Ordinal != 11 || string(pay2) != "b" {
		t.Fatalf("second call %+v payload %q", h2, pay2)
	}
}

func TestProxyNoReplySendUsesSentinel(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := p.Send(4, []byte("fire"), nil, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := p.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0", got)
	}
	h, _ := readEnvelope(t, peer)
	if h.Txid != rpc.NoTxid {
		t.Fatalf("txid %d, want sentinel", h.Txid)
	}
}

// TestProxyReplyInvokesHandlerOnce covers the core transaction matching
// contract: the reply runs exactly the registered handler, the table entry
// is gone afterwards, and a duplicate reply no longer matches.
func TestProxyReplyInvokesHandlerOnce(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	var mu sync.Mutex
	var replies []string
	respFn := func(req *rpc.Request) error {
		mu.Lock()
		replies = append(replies, string(req.Payload))
		mu.Unlock()
		return nil
	}
	if err := p.Send(7, []byte("ping"), nil, respFn); err != nil {
		t.Fatalf("Send: %v", err)
	}

	h, _ := readEnvelope(t, peer)
	if h.Txid != 1 {
		t.Fatalf("txid %d, want 1", h.Txid)
	}
	echo := rpc.NewMessage(rpc.Header{Txid: h.Txid, Magic: rpc.MagicV1, Ordinal: h.Ordinal}, []byte("pong"), nil)
	if err := peer.Write(echo); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}

	mu.Lock()
	got := append([]string(nil), replies...)
	mu.Unlock()
	if len(got) != 1 || got[0] != "pong" {
		t.Fatalf("replies %q, want [pong]", got)
	}
	if p.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 after reply", p.Pending())
	}

	// Same txid again: the entry is gone, so this is an event, and with
	// no event handler installed it is dropped.
	if err := peer.Write(echo); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	mu.Lock()
	n := len(replies)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}
}

func TestProxyUnknownTxidGoesToEventPath(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	var mu sync.Mutex
	var events []uint32
	p.SetEventFunc(func(req *rpc.Request) error {
		mu.Lock()
		events = append(events, req.Header.Txid)
		mu.Unlock()
		return nil
	})
	var errCount int32
	p.SetErrorFunc(func(error) { atomic.AddInt32(&errCount, 1) })
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	peer.Write(rpc.NewMessage(rpc.Header{Txid: 99, Magic: rpc.MagicV1, Ordinal: 5}, []byte("push"), nil))
	peer.Write(rpc.NewMessage(rpc.Header{Magic: rpc.MagicV1, Ordinal: 6}, []byte("push"), nil))
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}

	mu.Lock()
	got := append([]uint32(nil), events...)
	mu.Unlock()
	if len(got) != 2 || got[0] != 99 || got[1] != rpc.NoTxid {
		t.Fatalf("event txids %v, want [99 0]", got)
	}
	if atomic.LoadInt32(&errCount) != 0 {
		t.Fatal("unknown txid must not be an error")
	}
	if !p.IsBound() {
		t.Fatal("proxy should stay bound")
	}
}

func TestProxyDroppedEventClosesHandles(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	hnd := &fakeHandle{}
	peer.Write(rpc.NewMessage(rpc.Header{Magic: rpc.MagicV1, Ordinal: 1}, nil, []ipc.Handle{hnd}))
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	if !hnd.closed() {
		t.Fatal("handle on a dropped event should be closed")
	}
}

func TestProxySendFailureRemovesEntry(t *testing.T) {
	l := newIdleLoop(t)
	noop := func(*rpc.Request) error { return nil }

	unbound := rpc.NewProxy(l)
	if err := unbound.Send(1, []byte("x"), nil, noop); !errors.Is(err, api.ErrBadState) {
		t.Fatalf("unbound Send: %v, want ErrBadState", err)
	}
	if unbound.Pending() != 0 {
		t.Fatalf("Pending() = %d after failed send", unbound.Pending())
	}

	local, peer := ipc.NewChannelPair()
	peer.Close()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := p.Send(1, []byte("x"), nil, noop); !errors.Is(err, api.ErrPeerClosed) {
		t.Fatalf("Send to closed peer: %v, want ErrPeerClosed", err)
	}
	if p.Pending() != 0 {
		t.Fatalf("Pending() = %d after failed send", p.Pending())
	}
}

func TestProxyResetDropsHandlersAndRestartsTxids(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	var called int32
	respFn := func(*rpc.Request) error {
		atomic.AddInt32(&called, 1)
		return nil
	}
	p.Send(1, []byte("a"), nil, respFn)
	p.Send(1, []byte("b"), nil, respFn)
	h1, _ := readEnvelope(t, peer)
	readEnvelope(t, peer)

	p.Reset()
	if p.Pending() != 0 {
		t.Fatalf("Pending() = %d after Reset", p.Pending())
	}

	// A reply to a swept txid is an event now, and the orphaned handler
	// must never run.
	peer.Write(rpc.NewMessage(rpc.Header{Txid: h1.Txid, Magic: rpc.MagicV1, Ordinal: 1}, nil, nil))
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	if atomic.LoadInt32(&called) != 0 {
		t.Fatal("reset must not invoke pending handlers")
	}

	if err := p.Send(1, []byte("c"), nil, respFn); err != nil {
		t.Fatalf("Send: %v", err)
	}
	h3, _ := readEnvelope(t, peer)
	if h3.Txid != 1 {
		t.Fatalf("txid after reset %d, want 1", h3.Txid)
	}
}

func TestProxyTeardownOnPeerClose(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	var mu sync.Mutex
	var errs []error
	p.SetErrorFunc(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	var called int32
	p.Send(2, []byte("ping"), nil, func(*rpc.Request) error {
		atomic.AddInt32(&called, 1)
		return nil
	})

	peer.Close()
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}

	mu.Lock()
	got := append([]error(nil), errs...)
	mu.Unlock()
	if len(got) != 1 || !errors.Is(got[0], api.ErrPeerClosed) {
		t.Fatalf("error callbacks %v, want one ErrPeerClosed", got)
	}
	if p.Pending() != 0 {
		t.Fatalf("Pending() = %d after teardown", p.Pending())
	}
	if atomic.LoadInt32(&called) != 0 {
		t.Fatal("teardown must not invoke pending handlers")
	}
	if p.IsBound() {
		t.Fatal("proxy should be unbound after teardown")
	}
}

type callResult struct {
	m   *ipc.Message
	err error
}

func TestProxyCallReply(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	done := make(chan callResult, 1)
	go func() {
		m, err := p.Call(context.Background(), 7, []byte("ping"), nil)
		done <- callResult{m, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for peer.Queued() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never reached the peer")
		}
		time.Sleep(2 * time.Millisecond)
	}
	h, payload := readEnvelope(t, peer)
	if !h.ExpectsReply() || string(payload) != "ping" {
		t.Fatalf("request %+v payload %q", h, payload)
	}
	peer.Write(rpc.NewMessage(rpc.Header{Txid: h.Txid, Magic: rpc.MagicV1, Ordinal: h.Ordinal}, []byte("pong"), nil))
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Call: %v", res.err)
		}
		if string(res.m.Bytes) != "pong" {
			t.Fatalf("reply %q, want %q", res.m.Bytes, "pong")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return")
	}
	if p.Pending() != 0 {
		t.Fatalf("Pending() = %d after Call", p.Pending())
	}
}

func TestProxyCallCanceledByTeardown(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	done := make(chan callResult, 1)
	go func() {
		m, err := p.Call(context.Background(), 3, []byte("ping"), nil)
		done <- callResult{m, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for peer.Queued() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never reached the peer")
		}
		time.Sleep(2 * time.Millisecond)
	}
	peer.Close()
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}

	select {
	case res := <-done:
		if !errors.Is(res.err, api.ErrCanceled) {
			t.Fatalf("Call: %v, want ErrCanceled", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after teardown")
	}
}

func TestProxyCallContextCancel(t *testing.T) {
	l := newIdleLoop(t)
	local, peer := ipc.NewChannelPair()
	p := rpc.NewProxy(l)
	var events int32
	p.SetEventFunc(func(*rpc.Request) error {
		atomic.AddInt32(&events, 1)
		return nil
	})
	if err := p.Bind(local); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan callResult, 1)
	go func() {
		m, err := p.Call(ctx, 9, []byte("slow"), nil)
		done <- callResult{m, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for peer.Queued() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never reached the peer")
		}
		time.Sleep(2 * time.Millisecond)
	}
	h, _ := readEnvelope(t, peer)
	cancel()

	select {
	case res := <-done:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("Call: %v, want context.Canceled", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after cancel")
	}
	if p.Pending() != 0 {
		t.Fatalf("Pending() = %d after abandon", p.Pending())
	}

	// A reply arriving after the abandon matches nothing and takes the
	// event path.
	peer.Write(rpc.NewMessage(rpc.Header{Txid: h.Txid, Magic: rpc.MagicV1, Ordinal: h.Ordinal}, []byte("late"), nil))
	if err := l.RunUntilIdle(); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	if atomic.LoadInt32(&events) != 1 {
		t.Fatalf("events = %d, want 1", atomic.LoadInt32(&events))
	}
}
