// File: ipc/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package ipc implements the kernel-style object layer the dispatch runtime
// is built on: bidirectional message channels, completion ports, user-
// signalable events, and bell sources.
//
// A Channel carries discrete messages, each a byte payload plus zero or more
// transferable handles. Reads are all-or-nothing per message: a read with
// insufficient buffer space neither consumes nor mutates the queued message.
// Peer closure is observable only after the buffered backlog has drained.
//
// A Port is the single blocking primitive everything multiplexes through.
// It delivers three event families through one Wait call: one-shot signal
// watches registered with WaitAsync, caller-queued user packets, and the
// expiry of the port's armed timer. Multiple goroutines may block in Wait
// concurrently; each packet is handed to exactly one of them.
//
// These objects realize, in process, the transport and completion-queue
// contracts an OS kernel would otherwise provide, which keeps the dispatch
// loop, the message pump, and the RPC controllers fully testable without any
// platform dependency.
package ipc
