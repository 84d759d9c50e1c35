package rpc_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/rpc"
)

func TestHeaderRoundTrip(t *testing.T) {
	want := rpc.Header{
		Txid:    0x01020304,
		Flags:   [3]byte{0xaa, 0xbb, 0xcc},
		Magic:   rpc.MagicV1,
		Ordinal: 0x1122334455667788,
	}
	buf := make([]byte, rpc.HeaderSize)
	rpc.EncodeHeader(buf, want)
	got, err := rpc.DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if !got.ExpectsReply() {
		t.Error("non-sentinel txid should expect a reply")
	}
	if (rpc.Header{Txid: rpc.NoTxid}).ExpectsReply() {
		t.Error("sentinel txid should not expect a reply")
	}
}

// TestHeaderWireLayout pins the little-endian byte layout so both sides of
// a channel agree regardless of host order.
func TestHeaderWireLayout(t *testing.T) {
	buf := make([]byte, rpc.HeaderSize)
	rpc.EncodeHeader(buf, rpc.Header{Txid: 1, Magic: rpc.MagicV1, Ordinal: 2})
	want := []byte{
		1, 0, 0, 0,
		0, 0, 0,
		rpc.MagicV1,
		2, 0, 0, 0, 0, 0, 0, 0,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Fatalf("wire layout mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := rpc.DecodeHeader(make([]byte, rpc.HeaderSize-1))
	var perr *api.Error
	if !errors.As(err, &perr) || perr.Code != api.ErrCodeProtocol {
		t.Fatalf("short buffer: got %v, want protocol error", err)
	}
}

func TestDecodeHeaderRejectsUnknownMagic(t *testing.T) {
	buf := make([]byte, rpc.HeaderSize)
	rpc.EncodeHeader(buf, rpc.Header{Txid: 1, Magic: 7, Ordinal: 2})
	_, err := rpc.DecodeHeader(buf)
	var perr *api.Error
	if !errors.As(err, &perr) || perr.Code != api.ErrCodeProtocol {
		t.Fatalf("bad magic: got %v, want protocol error", err)
	}
}

func TestNewMessageCopiesPayload(t *testing.T) {
	src := []byte("payload")
	msg := rpc.NewMessage(rpc.Header{Txid: 3, Magic: rpc.MagicV1, Ordinal: 8}, src, nil)
	if len(msg.Bytes) != rpc.HeaderSize+len(src) {
		t.Fatalf("message length %d, want %d", len(msg.Bytes), rpc.HeaderSize+len(src))
	}
	src[0] = 'X'
	h, err := rpc.DecodeHeader(msg.Bytes)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Txid != 3 || h.Ordinal != 8 {
		t.Fatalf("header %+v, want txid 3 ordinal 8", h)
	}
	if got := string(msg.Bytes[rpc.HeaderSize:]); got != "payload" {
		t.Fatalf("payload %q, want %q", got, "payload")
	}
}
