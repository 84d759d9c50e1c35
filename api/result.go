// File: api/result.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler dispositions and cancellation tokens.

package api

// Disposition is returned by message and event handlers to tell the dispatch
// loop what to do next. It replaces reserved status codes: the loop checks
// the disposition before touching any post-call state, so a handler that has
// destroyed its own container reports that fact explicitly.
type Disposition int

const (
	// Continue means the event was handled and the loop should keep
	// listening for more.
	Continue Disposition = iota

	// Stop means the handler consumed the event but wants no further
	// dispatch; the owning registration stays intact.
	Stop

	// ConsumedSelf means the handler destroyed or unbound the object that
	// invoked it. The dispatch path must return without touching that
	// object's state again.
	ConsumedSelf
)

// String renders the disposition for logs and test failures.
func (d Disposition) String() string {
	switch d {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	case ConsumedSelf:
		return "consumed-self"
	default:
		return "unknown"
	}
}

// Cancelable is any pending operation that may be canceled.
type Cancelable interface {
	// Cancel attempts to abort the operation.
	Cancel() error
	// Done signals completion/cancellation.
	Done() <-chan struct{}
	// Err returns the completion reason once Done is closed.
	Err() error
}
