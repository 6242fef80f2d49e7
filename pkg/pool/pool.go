// Package pool provides typed object pools with usage statistics, and the
// shared byte buffer pool used when rendering data files, scripts and JSON.
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// MaxPooledBuffer is the largest buffer capacity PutBuffer keeps. Larger
// buffers are left to the garbage collector so one huge data file does not
// pin its memory.
const MaxPooledBuffer = 1 << 20

// Pool is a type-safe wrapper around sync.Pool. It is safe for concurrent
// use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a pool. reset, when non-nil, runs before an object goes back
// into the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get takes an object from the pool, allocating one when it is empty
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.gets, 1)
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Discard records that obj was taken but will not be returned
func (p *Pool[T]) Discard() {
	atomic.AddInt64(&p.stats.inUse, -1)
}

// Stats returns the number of objects allocated, currently checked out and
// handed out in total. gets - allocated is the number of reuses.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.gets)
}

// Buffers is the shared byte buffer pool
var Buffers = New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	func(b *bytes.Buffer) { b.Reset() },
)

// GetBuffer returns an empty buffer from Buffers
func GetBuffer() *bytes.Buffer {
	return Buffers.Get()
}

// PutBuffer returns buf to Buffers unless it grew past MaxPooledBuffer
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > MaxPooledBuffer {
		Buffers.Discard()
		return
	}
	Buffers.Put(buf)
}
