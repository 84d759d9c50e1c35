package ipc_test

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
)

// TestBellRing delivers one packet per ring with the rung address.
func TestBellRing(t *testing.T) {
	p := ipc.NewPort()
	defer p.Close()
	b := ipc.NewBell()
	defer b.Close()

	if err := b.Attach(p, 31); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	for _, addr := range []uint64{0x1000, 0x2000} {
		if err := b.Ring(addr); err != nil {
			t.Fatalf("Ring(%#x): %v", addr, err)
		}
	}
	for _, want := range []uint64{0x1000, 0x2000} {
		pkt, err := p.Wait(time.Now().Add(time.Second))
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if pkt.Kind != ipc.PacketBell || pkt.Key != 31 || pkt.Addr != want {
			t.Fatalf("packet = %+v, want bell key 31 addr %#x", pkt, want)
		}
	}
}

// TestBellPersistentBinding asserts the binding survives deliveries,
// unlike one-shot object watches.
func TestBellPersistentBinding(t *testing.T) {
	p := ipc.NewPort()
	defer p.Close()
	b := ipc.NewBell()
	defer b.Close()

	if err := b.Attach(p, 1); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := b.Ring(uint64(i)); err != nil {
			t.Fatalf("Ring: %v", err)
		}
		if _, err := p.Wait(time.Now()); err != nil {
			t.Fatalf("Wait after ring %d: %v", i, err)
		}
	}
}

// TestBellAttachStates covers unattached rings, double attach and detach.
func TestBellAttachStates(t *testing.T) {
	p := ipc.NewPort()
	defer p.Close()
	b := ipc.NewBell()
	defer b.Close()

	if err := b.Ring(0); !errors.Is(err, api.ErrBadState) {
		t.Errorf("Ring unattached = %v, want ErrBadState", err)
	}
	if err := b.Attach(p, 2); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := b.Attach(p, 3); !errors.Is(err, api.ErrBadState) {
		t.Errorf("double Attach = %v, want ErrBadState", err)
	}
	b.Detach()
	if err := b.Ring(0); !errors.Is(err, api.ErrBadState) {
		t.Errorf("Ring after Detach = %v, want ErrBadState", err)
	}
	if err := b.Attach(p, 4); err != nil {
		t.Errorf("re-Attach after Detach: %v", err)
	}
}

// TestBellClose rejects rings after Close.
func TestBellClose(t *testing.T) {
	p := ipc.NewPort()
	defer p.Close()
	b := ipc.NewBell()

	if err := b.Attach(p, 6); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Ring(0); !errors.Is(err, api.ErrBadHandle) {
		t.Errorf("Ring after Close = %v, want ErrBadHandle", err)
	}
}
