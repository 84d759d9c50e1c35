// File: rpc/envelope.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire envelope shared by both controller sides. Every message on an RPC
// channel starts with a fixed 16-byte little-endian header; the payload
// after it is opaque to this package.

package rpc

import (
	"encoding/binary"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
)

const (
	// HeaderSize is the fixed envelope header length in bytes.
	HeaderSize = 16

	// MagicV1 identifies the only wire revision this package speaks.
	MagicV1 byte = 1

	// NoTxid is the reserved transaction identifier meaning "no reply
	// expected": fire-and-forget calls and server-pushed events.
	NoTxid uint32 = 0

	// MaxUserTxid bounds proxy-assigned identifiers. The high bit is
	// reserved for identifiers originating outside user space in the
	// contract this envelope mirrors.
	MaxUserTxid uint32 = 1<<31 - 1
)

// Header is the decoded envelope header. Txid correlates a call with its
// reply; Ordinal selects the method being invoked. Flags are reserved and
// carried verbatim.
type Header struct {
	Txid    uint32
	Flags   [3]byte
	Magic   byte
	Ordinal uint64
}

// ExpectsReply reports whether the sender waits for a reply with the same
// transaction identifier.
func (h Header) ExpectsReply() bool { return h.Txid != NoTxid }

// EncodeHeader writes h into the first HeaderSize bytes of dst.
func EncodeHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Txid)
	copy(dst[4:7], h.Flags[:])
	dst[7] = h.Magic
	binary.LittleEndian.PutUint64(dst[8:16], h.Ordinal)
}

// DecodeHeader parses the envelope header from src. Short buffers and
// unknown wire revisions are protocol errors.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, api.NewError(api.ErrCodeProtocol, "envelope shorter than header").
			WithContext("len", len(src))
	}
	var h Header
	h.Txid = binary.LittleEndian.Uint32(src[0:4])
	copy(h.Flags[:], src[4:7])
	h.Magic = src[7]
	h.Ordinal = binary.LittleEndian.Uint64(src[8:16])
	if h.Magic != MagicV1 {
		return Header{}, api.NewError(api.ErrCodeProtocol, "unknown envelope magic").
			WithContext("magic", h.Magic)
	}
	return h, nil
}

// NewMessage assembles a wire message: encoded header followed by the
// payload, handles attached. The payload is copied; handles transfer to
// the message.
func NewMessage(h Header, payload []byte, handles []ipc.Handle) ipc.Message {
	buf := make([]byte, HeaderSize+len(payload))
	EncodeHeader(buf, h)
	copy(buf[HeaderSize:], payload)
	return ipc.Message{Bytes: buf, Handles: handles}
}

// Request is a decoded inbound message. Payload aliases the transport
// buffer and is only valid until the receiving callback returns; callers
// that keep it must copy. Handles belong to whoever consumes the request.
type Request struct {
	Header  Header
	Payload []byte
	Handles []ipc.Handle
}

func decodeRequest(m *ipc.Message) (*Request, error) {
	h, err := DecodeHeader(m.Bytes)
	if err != nil {
		return nil, err
	}
	return &Request{Header: h, Payload: m.Bytes[HeaderSize:], Handles: m.Handles}, nil
}
