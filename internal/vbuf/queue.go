package vbuf

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/AmbrSb/LServer/internal/objpool"
)

// pooledBuffer adapts *DynamicString to objpool.Finalizer. Buffers never
// need forced recovery (they are rented and returned synchronously within
// one session's write chain), so Finalize is a no-op.
type pooledBuffer struct {
	*DynamicString
}

func (pooledBuffer) Finalize() {}

// BufferPool is the shared pool that DynamicQueue draws DynamicString
// buffers from, grounded on original_source/src/queue_buffer_pool.hpp.
type BufferPool struct {
	pool *objpool.Pool[pooledBuffer]
}

// NewBufferPool returns an unbounded, lazily-populated buffer pool sized by
// defaultCapacity for each freshly created buffer.
func NewBufferPool(defaultCapacity int) *BufferPool {
	p, _ := objpool.New[pooledBuffer](0, false, func() pooledBuffer {
		return pooledBuffer{NewDynamicString(defaultCapacity)}
	})
	return &BufferPool{pool: p}
}

// Borrow rents a buffer of at least n bytes of capacity.
func (bp *BufferPool) Borrow(n int) *DynamicString {
	item, _ := bp.pool.Borrow(objpool.InvalidPOI)
	item.Clear()
	if item.Cap() < n {
		item.growTo(n)
	}
	return item.DynamicString
}

// PutBack returns a buffer to the pool.
func (bp *BufferPool) PutBack(d *DynamicString) {
	bp.pool.PutBack(pooledBuffer{d})
}

// DynamicQueue is a thread-safe FIFO of *DynamicString buffers drawn from a
// shared BufferPool, grounded on original_source/src/dynamic_queue.hpp. It
// is the storage behind a session's outgoing write chain: exactly one
// producer enqueues from protocol/caller goroutines while the send chain
// drains from the front.
type DynamicQueue struct {
	mu   sync.Mutex
	q    *queue.Queue
	pool *BufferPool
}

// NewDynamicQueue returns an empty queue backed by pool.
func NewDynamicQueue(pool *BufferPool) *DynamicQueue {
	return &DynamicQueue{q: queue.New(), pool: pool}
}

// Prepare rents a buffer of at least n bytes from the shared pool. The
// caller must eventually pass it to Push (to queue it) or Free (to return
// it unused).
func (dq *DynamicQueue) Prepare(n int) *DynamicString {
	return dq.pool.Borrow(n)
}

// Free returns a buffer obtained from Prepare but never pushed.
func (dq *DynamicQueue) Free(buf *DynamicString) {
	dq.pool.PutBack(buf)
}

// Push enqueues buf.
func (dq *DynamicQueue) Push(buf *DynamicString) {
	dq.mu.Lock()
	dq.q.Add(buf)
	dq.mu.Unlock()
}

// Front returns the buffer at the head of the queue without removing it.
// Callers must not call Front on an empty queue.
func (dq *DynamicQueue) Front() *DynamicString {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return dq.q.Peek().(*DynamicString)
}

// FrontOrNil returns the buffer at the head of the queue without removing
// it, or nil if the queue is empty.
func (dq *DynamicQueue) FrontOrNil() *DynamicString {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	if dq.q.Length() == 0 {
		return nil
	}
	return dq.q.Peek().(*DynamicString)
}

// Pop removes the buffer at the head of the queue and returns it to the
// shared pool. It is a no-op on an empty queue, which is what a writer
// finds when Clear has already drained the queue under it.
func (dq *DynamicQueue) Pop() {
	dq.mu.Lock()
	if dq.q.Length() == 0 {
		dq.mu.Unlock()
		return
	}
	buf := dq.q.Remove().(*DynamicString)
	dq.mu.Unlock()
	dq.pool.PutBack(buf)
}

// Clear drains the queue, returning every buffer to the shared pool.
func (dq *DynamicQueue) Clear() {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	for dq.q.Length() > 0 {
		buf := dq.q.Remove().(*DynamicString)
		dq.pool.PutBack(buf)
	}
}

// Len returns the number of buffers currently queued.
func (dq *DynamicQueue) Len() int {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return dq.q.Length()
}

// Empty reports whether the queue is empty.
func (dq *DynamicQueue) Empty() bool {
	return dq.Len() == 0
}
