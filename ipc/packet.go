// File: ipc/packet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion packets delivered by Port.Wait.

package ipc

// PacketKind discriminates the event families a port delivers.
type PacketKind uint8

const (
	// PacketSignal completes a one-shot WaitAsync registration.
	PacketSignal PacketKind = iota + 1

	// PacketUser is a caller-queued packet carrying opaque user data.
	PacketUser

	// PacketTimer reports expiry of the port's armed timer.
	PacketTimer

	// PacketBell reports a rung bell with its trap address.
	PacketBell
)

// String renders the kind for diagnostics.
func (k PacketKind) String() string {
	switch k {
	case PacketSignal:
		return "signal"
	case PacketUser:
		return "user"
	case PacketTimer:
		return "timer"
	case PacketBell:
		return "bell"
	default:
		return "invalid"
	}
}

// Reserved packet keys. Registration keys handed out by the dispatch loop
// start above the reserved range and are never reused.
const (
	// KeyControl marks loop control packets (quit wake-ups).
	KeyControl uint64 = 0

	// KeyTimer marks port timer expirations.
	KeyTimer uint64 = 1

	// KeyReservedMax is the highest reserved key value.
	KeyReservedMax uint64 = 15
)

// Packet is one completion event.
type Packet struct {
	Kind PacketKind
	Key  uint64

	// Observed and Count are set on PacketSignal: the signal state at
	// assertion time and the pending-operation count (for channels, the
	// number of queued messages).
	Observed Signals
	Count    uint64

	// User is the caller-supplied payload of a PacketUser.
	User any

	// Addr is the trap address of a PacketBell.
	Addr uint64
}
