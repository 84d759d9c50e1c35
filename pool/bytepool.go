// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Size-classed byte buffer pool. GetBuffer returns a slice with the exact
// requested length over a recycled backing array; PutBuffer recycles by
// capacity class. Buffers whose capacity matches no class are left to the GC.

package pool

import (
	"sync"
	"sync/atomic"
)

const (
	minClassBytes = 256
	maxClassBytes = 64 * 1024
	numClasses    = 9 // 256B .. 64KiB, doubling
)

// BytePool is a set of power-of-two size classes over sync.Pool.
type BytePool struct {
	classes [numClasses]sync.Pool
	gets    atomic.Int64
	puts    atomic.Int64
	misses  atomic.Int64
}

// NewBytePool creates an empty pool. The zero value is also usable.
func NewBytePool() *BytePool {
	return &BytePool{}
}

// Default is the shared process-wide pool used by the ipc package.
var Default = NewBytePool()

// classFor returns the class index holding buffers of capacity >= n,
// or -1 when n exceeds the largest class.
func classFor(n int) int {
	c := minClassBytes
	for i := 0; i < numClasses; i++ {
		if n <= c {
			return i
		}
		c <<= 1
	}
	return -1
}

// classSize returns the buffer capacity of class i.
func classSize(i int) int { return minClassBytes << i }

// GetBuffer returns a buffer of length n. The contents are unspecified.
func (p *BytePool) GetBuffer(n int) []byte {
	p.gets.Add(1)
	if n == 0 {
		return nil
	}
	i := classFor(n)
	if i < 0 {
		p.misses.Add(1)
		return make([]byte, n)
	}
	if v := p.classes[i].Get(); v != nil {
		return (*v.(*[]byte))[:n]
	}
	p.misses.Add(1)
	buf := make([]byte, classSize(i))
	return buf[:n]
}

// PutBuffer recycles buf. Callers must not use buf afterwards.
func (p *BytePool) PutBuffer(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	p.puts.Add(1)
	i := classFor(cap(buf))
	if i < 0 || classSize(i) != cap(buf) {
		// Odd capacity, not one of ours. GC handles memory.
		return
	}
	full := buf[:cap(buf)]
	p.classes[i].Put(&full)
}

// Stats reports pool activity counters.
func (p *BytePool) Stats() (gets, puts, misses int64) {
	return p.gets.Load(), p.puts.Load(), p.misses.Load()
}
