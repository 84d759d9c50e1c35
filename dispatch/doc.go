// File: dispatch/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package dispatch implements the multiplexing event loop of the runtime.
//
// A Loop owns one ipc.Port and admits four kinds of work: one-shot
// readiness waits on waitable objects, deadline-ordered timer tasks,
// caller-queued packets aimed at a Receiver, and persistent bell bindings.
// Any number of worker goroutines may block in Run on the same loop; each
// completion is dispatched by exactly one of them, with the loop lock
// released around every handler invocation so handlers may freely re-enter
// the loop, post more work, or cancel other registrations.
//
// Lifecycle is a one-way state machine: Runnable, Quit, Shutdown. Quit asks
// the runners to come home and is reversible through ResetQuit; Shutdown is
// terminal, joins loop-started workers and then drains every pending wait,
// task and bell binding exactly once with api.ErrCanceled.
package dispatch
