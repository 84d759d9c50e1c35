// File: fake/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fake provides test doubles for the runtime: a manually advanced
// clock, recording pump handlers and a scripted stub. They are used by the
// package tests and are exported so downstream consumers can test their own
// proxies and stubs without real time or real worker pools.
package fake
