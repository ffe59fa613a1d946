// Package lscontext implements the Context and ContextPool: the event-loop
// plus worker-thread-group abstraction that sessions run on, grounded on
// original_source/src/lscontext.hpp. Where the original drives one
// asio::io_context per context across a group of OS threads, this
// implementation drives one buffered work queue per context across a
// group of goroutines.
package lscontext

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/AmbrSb/LServer/internal/stats"
)

// ErrContextBusy is returned by DeactivateContext when the context still
// has sessions bound to it.
var ErrContextBusy = errors.New("lscontext: context still has active sessions")

// ErrMaxWorkersReached is returned by AddContext when the pool is already
// at its configured maximum.
var ErrMaxWorkersReached = errors.New("lscontext: max_num_workers reached")

// ErrInvalidContext is returned by operations given an out-of-range or
// already-removed context index.
var ErrInvalidContext = errors.New("lscontext: invalid context index")

// ErrContextAlreadyInactive is returned by DeactivateContext when the
// target context has already been deactivated.
var ErrContextAlreadyInactive = errors.New("lscontext: context already inactive")

// ErrLastActiveContext is returned by DeactivateContext when the target is
// the only remaining active context in the pool; a pool with zero active
// contexts could never dispatch another accepted connection.
var ErrLastActiveContext = errors.New("lscontext: cannot deactivate the last active context")

const defaultWorkQueueDepth = 4096

// Context is one event loop plus its worker-thread group: a buffered work
// queue drained by numThreads goroutines, and a pool of strands available
// to sessions that need to serialize sub-tasks across those goroutines.
type Context struct {
	index      int
	numThreads int

	workQueue chan Task
	stopCh    chan struct{}
	workers   errgroup.Group

	strands          *StrandPool
	strandPoolSize   int
	strandQueueDepth int

	holdCnt int32 // taken at round-robin selection, released only when the bound session is released
	refCnt  int32 // sessions bound to this context for their full lifetime
	active  atomic.Bool
}

func newContext(index, numThreads, strandPoolSize, strandQueueDepth int) *Context {
	c := &Context{
		index:            index,
		numThreads:       numThreads,
		workQueue:        make(chan Task, defaultWorkQueueDepth),
		stopCh:           make(chan struct{}),
		strands:          NewStrandPool(strandPoolSize, strandQueueDepth),
		strandPoolSize:   strandPoolSize,
		strandQueueDepth: strandQueueDepth,
	}
	c.active.Store(true)
	for i := 0; i < numThreads; i++ {
		c.workers.Go(c.workerLoop)
	}
	return c
}

func (c *Context) workerLoop() error {
	for {
		select {
		case t, ok := <-c.workQueue:
			if !ok {
				return nil
			}
			t()
		case <-c.stopCh:
			c.drainWorkQueue()
			return nil
		}
	}
}

// drainWorkQueue runs any tasks already buffered in the work queue at the
// moment this context stopped, rather than discarding them.
func (c *Context) drainWorkQueue() {
	for {
		select {
		case t := <-c.workQueue:
			t()
		default:
			return
		}
	}
}

// Post schedules t to run on one of this context's worker goroutines. It
// returns false if the context has stopped and t was never scheduled, in
// which case the caller must handle t itself rather than orphan it.
func (c *Context) Post(t Task) bool {
	select {
	case c.workQueue <- t:
		return true
	case <-c.stopCh:
		return false
	}
}

// BorrowStrand rents a serial executor for a session bound to this
// context.
func (c *Context) BorrowStrand() (*Strand, bool) {
	return c.strands.Borrow()
}

// ReturnStrand returns a strand obtained from BorrowStrand.
func (c *Context) ReturnStrand(s *Strand) {
	c.strands.PutBack(s)
}

// Hold increments the count of sessions bound to this context, preventing
// deactivation until every holder releases. It mirrors the original's
// hold_cnt used to keep a context alive while round-robin dispatch selects
// and binds a new session to it.
func (c *Context) Hold() {
	atomic.AddInt32(&c.holdCnt, 1)
}

// Unhold decrements the hold count.
func (c *Context) Unhold() {
	atomic.AddInt32(&c.holdCnt, -1)
}

// HoldCount returns the current number of sessions bound to this context.
func (c *Context) HoldCount() int {
	return int(atomic.LoadInt32(&c.holdCnt))
}

// Ref increments this context's session-reference count, taken for the
// full lifetime of a session bound to it. It is a separate counter from
// Hold/Unhold, although here the hold also lasts for the session's whole
// lifetime: it is not released once dispatch completes. It mirrors the original's ref_cnt, the counter reusable() checks before
// a deactivated context's slot may be handed back out.
func (c *Context) Ref() {
	atomic.AddInt32(&c.refCnt, 1)
}

// Deref decrements the session-reference count. It panics if the count
// would go negative, mirroring the original's assertion that deref never
// outnumbers ref.
func (c *Context) Deref() {
	if atomic.AddInt32(&c.refCnt, -1) < 0 {
		panic("lscontext: Deref called without a matching Ref")
	}
}

// RefCount returns the current session-reference count.
func (c *Context) RefCount() int {
	return int(atomic.LoadInt32(&c.refCnt))
}

// Index returns this context's position in its owning ContextPool.
func (c *Context) Index() int {
	return c.index
}

// Active reports whether this context currently accepts new sessions.
func (c *Context) Active() bool {
	return c.active.Load()
}

// Stopped reports whether this context has been deactivated. Sessions
// bound to it check this after issuing a read or write to detect a
// context that was torn down out from under them, rather than continuing
// to run orphaned.
func (c *Context) Stopped() bool {
	return !c.Active()
}

// Reusable reports whether this context's slot may be handed back out by
// AddContext: it must be inactive and have no sessions still referencing
// it. The original flags the ref_cnt half of this check as an open
// question; this implementation keeps it, since a session holding a
// reference to a context that gets reused out from under it would be
// left pointing at threads and a strand pool that no longer belong to it.
func (c *Context) Reusable() bool {
	return !c.Active() && c.RefCount() == 0
}

// NumThreads returns the number of worker goroutines this context is
// currently configured to run.
func (c *Context) NumThreads() int {
	return c.numThreads
}

// Stop halts the worker goroutines and waits for them to exit. It is safe
// to call more than once; only the transition from active to inactive
// actually tears anything down.
func (c *Context) Stop() {
	if !c.active.CompareAndSwap(true, false) {
		return
	}
	close(c.stopCh)
	c.workers.Wait()
}

// Reuse reactivates a stopped, reusable context slot with threadsCnt
// worker goroutines, per the original's reuse(): it replaces the work
// queue's stop signal and strand sub-pool with fresh instances and
// launches new workers, so AddContext can hand this slot back out instead
// of growing the pool.
func (c *Context) Reuse(threadsCnt int) {
	c.numThreads = threadsCnt
	c.stopCh = make(chan struct{})
	c.workers = errgroup.Group{}
	c.strands = NewStrandPool(c.strandPoolSize, c.strandQueueDepth)
	c.active.Store(true)
	for i := 0; i < threadsCnt; i++ {
		c.workers.Go(c.workerLoop)
	}
}

// Info returns a point-in-time snapshot for the control plane and periodic
// stats output.
func (c *Context) Info() stats.ContextInfo {
	total, inFlight := c.strands.Stats()
	return stats.ContextInfo{
		Index:              c.index,
		ThreadsCnt:         c.numThreads,
		ActiveSessionsCnt:  c.HoldCount(),
		StrandPoolSize:     total,
		StrandPoolInFlight: inFlight,
		Active:             c.Active(),
	}
}
