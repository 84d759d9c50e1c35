// File: ipc/signals.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Signal bits observable on waitable objects.

package ipc

import "strings"

// Signals is a bitmask of conditions assertable on a waitable object.
type Signals uint32

const (
	// SignalReadable is asserted while at least one message is queued.
	SignalReadable Signals = 1 << iota

	// SignalWritable is asserted while the peer endpoint is open.
	SignalWritable

	// SignalPeerClosed is asserted once the peer endpoint has closed.
	// No further messages will ever arrive after the backlog drains.
	SignalPeerClosed

	// SignalUser0 through SignalUser3 are general-purpose bits under
	// application control, settable on Event objects.
	SignalUser0
	SignalUser1
	SignalUser2
	SignalUser3
)

// SignalNone is the empty signal set.
const SignalNone Signals = 0

// SignalUserAll covers every application-controlled bit.
const SignalUserAll = SignalUser0 | SignalUser1 | SignalUser2 | SignalUser3

// Has reports whether any bit of mask is asserted in s.
func (s Signals) Has(mask Signals) bool { return s&mask != 0 }

// String renders the asserted bits for diagnostics.
func (s Signals) String() string {
	if s == 0 {
		return "none"
	}
	names := []struct {
		bit  Signals
		name string
	}{
		{SignalReadable, "readable"},
		{SignalWritable, "writable"},
		{SignalPeerClosed, "peer-closed"},
		{SignalUser0, "user0"},
		{SignalUser1, "user1"},
		{SignalUser2, "user2"},
		{SignalUser3, "user3"},
	}
	var parts []string
	for _, n := range names {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
