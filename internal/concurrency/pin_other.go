// File: internal/concurrency/pin_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package concurrency

import "runtime"

// PinWorker locks the calling goroutine to its OS thread. CPU binding is
// not available on this platform.
func PinWorker(id int) error {
	runtime.LockOSThread()
	return nil
}
