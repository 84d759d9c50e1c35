// File: internal/concurrency/pin_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinWorker locks the calling goroutine to its OS thread and binds that
// thread to one CPU, chosen round-robin from the worker id. The lock is
// intentionally never released: a pinned worker runs dispatch until the
// loop shuts down.
func PinWorker(id int) error {
	runtime.LockOSThread()
	cpu := id % runtime.NumCPU()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
