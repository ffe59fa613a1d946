// Package objpool implements the generic bounded/unbounded LIFO object
// pool used throughout LServer for sessions, strands, and outgoing buffers:
// in-flight tracking, a single async waiter slot, and id-keyed forced
// recovery via Finalizer.
package objpool

import (
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrInvalidArgs is returned by New when eager is requested on an
// unbounded (maxSize == 0) pool — there is nothing to eagerly create.
var ErrInvalidArgs = errors.New("objpool: eager pool requires a positive max size")

// ErrWaiterActive is returned by BorrowAsync when a callback is already
// registered. Only one asynchronous waiter is supported at a time; a
// second concurrent waiter is a programming error and must fail loudly.
var ErrWaiterActive = errors.New("objpool: async borrow callback already active")

// InvalidPOI is the sentinel id recorded for items that are not currently
// tagged with a pool-of-items id (i.e. sitting idle on the stack).
const InvalidPOI = ^uint64(0)

// Finalizer is implemented by items that support forced recovery: Recover
// asks the item to begin winding down so that it is eventually returned to
// the pool via PutBack through the item's own lifecycle.
type Finalizer interface {
	Finalize()
}

// Pool is a generic LIFO object pool. T is typically a pointer type.
type Pool[T interface {
	Finalizer
	comparable
}] struct {
	mu       sync.Mutex
	factory  func() T
	stack    []T
	allItems map[T]uint64
	total    int
	inFlight int
	maxSize  int // 0 means unbounded
	waiter   func(T)
	waiterSlot *semaphore.Weighted // weight 1: at most one registered waiter at a time
}

// New constructs a pool with the given factory. maxSize == 0 means
// unbounded. eager pre-creates maxSize items immediately and requires
// maxSize > 0.
func New[T interface {
	Finalizer
	comparable
}](maxSize int, eager bool, factory func() T) (*Pool[T], error) {
	if eager && maxSize == 0 {
		return nil, ErrInvalidArgs
	}
	p := &Pool[T]{
		factory:    factory,
		allItems:   make(map[T]uint64),
		maxSize:    maxSize,
		waiterSlot: semaphore.NewWeighted(1),
	}
	if eager {
		for i := 0; i < maxSize; i++ {
			item := factory()
			p.total++
			p.stack = append(p.stack, item)
			p.allItems[item] = InvalidPOI
		}
	}
	return p, nil
}

// Borrow returns an item from the pool, tagging it with id. It pops the
// LIFO stack if non-empty; otherwise, if under maxSize (or unbounded), it
// creates a fresh item. Returns the zero value and false if the pool is
// exhausted.
func (p *Pool[T]) Borrow(id uint64) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tryBorrowLocked(id)
}

func (p *Pool[T]) tryBorrowLocked(id uint64) (T, bool) {
	var item T
	if n := len(p.stack); n > 0 {
		item = p.stack[n-1]
		p.stack = p.stack[:n-1]
	} else if p.maxSize == 0 || p.total < p.maxSize {
		item = p.factory()
		p.total++
	} else {
		var zero T
		return zero, false
	}
	p.inFlight++
	p.allItems[item] = id
	return item, true
}

// BorrowAsync returns an item immediately if one is available. Otherwise it
// registers cb as the single pending waiter, to be invoked by a future
// PutBack; it returns ErrWaiterActive if a waiter is already registered.
func (p *Pool[T]) BorrowAsync(id uint64, cb func(T)) (T, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item, ok := p.tryBorrowLocked(id); ok {
		return item, true, nil
	}
	var zero T
	if !p.waiterSlot.TryAcquire(1) {
		return zero, false, ErrWaiterActive
	}
	p.waiter = cb
	return zero, false, nil
}

// PutBack returns item to the pool. If an async waiter is registered, the
// item is handed directly to it and in-flight is not decremented — the
// item's ownership transfers straight to the waiter. Otherwise the item is
// pushed onto the stack, its POI is invalidated, and in-flight decrements.
func (p *Pool[T]) PutBack(item T) {
	p.mu.Lock()
	if p.waiter != nil {
		cb := p.waiter
		p.waiter = nil
		p.waiterSlot.Release(1)
		p.allItems[item] = InvalidPOI
		p.mu.Unlock()
		cb(item)
		return
	}
	p.stack = append(p.stack, item)
	p.allItems[item] = InvalidPOI
	p.inFlight--
	p.mu.Unlock()
}

// Recover invokes Finalize on every currently-tracked item whose recorded
// id equals poi. Finalize is expected to eventually cause a PutBack through
// the item's own lifecycle; Recover does not call PutBack itself.
func (p *Pool[T]) Recover(poi uint64) {
	p.mu.Lock()
	snapshot := make(map[T]uint64, len(p.allItems))
	for k, v := range p.allItems {
		snapshot[k] = v
	}
	p.mu.Unlock()

	for item, id := range snapshot {
		if id == poi {
			item.Finalize()
		}
	}
}

// Stats returns the current total item count and in-flight count, matching
// the invariant total == len(stack) + inFlight at every public-operation
// boundary.
func (p *Pool[T]) Stats() (total, inFlight int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.inFlight
}

// Destroy calls destroy on every tracked item, in-flight or not. Intended
// for use at server shutdown, after I/O has quiesced.
func (p *Pool[T]) Destroy(destroy func(T)) {
	p.mu.Lock()
	items := make([]T, 0, len(p.allItems))
	for item := range p.allItems {
		items = append(items, item)
	}
	p.allItems = make(map[T]uint64)
	p.stack = nil
	p.mu.Unlock()

	for _, item := range items {
		destroy(item)
	}
}
