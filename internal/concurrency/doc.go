// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package concurrency holds the platform-specific worker pinning used by
// loop workers. Pinning is pure Go over the syscall surface; on platforms
// without an affinity syscall it degrades to locking the goroutine to its
// OS thread.
package concurrency
