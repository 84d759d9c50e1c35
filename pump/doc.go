// File: pump/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package pump binds one channel endpoint to a dispatch loop and feeds
// inbound messages to a handler, one at a time.
//
// A bound pump keeps exactly one readiness wait outstanding and never arms
// the next one before the current dispatch finished, so handler invocations
// for a given channel are serialized even on a multi-worker loop. Per
// readiness it drains at most ReadBatch messages before yielding the worker
// back, which bounds how long one busy channel can monopolize a worker.
//
// Channel failure, peer closure and loop shutdown all converge on one
// teardown transition: the pump unbinds, closes the channel and invokes the
// error callback exactly once per binding.
package pump
