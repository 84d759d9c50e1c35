// File: ipc/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Discrete channel messages: a byte payload plus transferable handles.

package ipc

import "github.com/momentics/hioload-ipc/pool"

const (
	// MaxMessageBytes bounds a single message payload.
	MaxMessageBytes = 64 * 1024

	// MaxMessageHandles bounds the handles one message may carry.
	MaxMessageHandles = 64
)

// Handle is any transferable capability. Channels, ports, events and bells
// are all handles; application objects may be too.
type Handle interface {
	Close() error
}

// Message is one discrete channel message. Writers retain ownership of the
// Bytes they pass to Write (the payload is copied); Handles are transferred
// and must not be used by the sender afterwards.
type Message struct {
	Bytes   []byte
	Handles []Handle

	pooled bool
}

// Release returns a pool-backed payload to the buffer pool. Messages
// produced by Channel.ReadMessage are pool-backed; releasing them promptly
// keeps the read path allocation-free under load. Release is optional (the
// GC reclaims unreleased payloads) and idempotent. The payload must not be
// referenced after Release.
func (m *Message) Release() {
	if m.pooled {
		pool.Default.PutBuffer(m.Bytes)
		m.pooled = false
	}
	m.Bytes = nil
}

// Discard destroys an undeliverable message: the payload goes back to the
// pool and every carried handle is closed. Callers must not hold object
// locks, since closing a carried handle may re-enter them.
func (m *Message) Discard() {
	m.Release()
	for _, h := range m.Handles {
		if h != nil {
			h.Close()
		}
	}
	m.Handles = nil
}
