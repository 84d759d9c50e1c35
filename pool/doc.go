// File: pool/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package pool provides recycled payload buffers for the channel read/write
// path. Message payloads are short-lived and size-skewed, so buffers are
// kept in power-of-two size classes backed by sync.Pool; anything above the
// largest class falls through to the allocator.
package pool
