// Package vm implements the embedded virtual machine that VScript
// operations run on: named exclusive-lock resources with per-holder
// release, blocking sleep, and a compiler-opaque spin loop.
package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// pollInterval is the cadence at which Lock re-checks resource
// availability and the cancellation flag, matching the 100ms poll loop in
// original_source/src/lsvm.hpp.
const pollInterval = 100 * time.Millisecond

// resource is a single named lockable slot. It is created lazily on first
// use and never destroyed; the resource table only grows.
type resource struct {
	mu       sync.Mutex
	cond     *sync.Cond
	taken    bool
	holderID uint64
}

func newResource() *resource {
	r := &resource{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// VM is the shared, per-server virtual machine instance. One VM is injected
// into the HTTP upper layer and shared by every session it serves — not a
// process-global singleton, per SPEC_FULL.md §9's redesign note.
type VM struct {
	mu        sync.RWMutex
	resources map[uint64]*resource
}

// New returns an empty VM with a lazily-grown resource table.
func New() *VM {
	return &VM{resources: make(map[uint64]*resource)}
}

// lookupOrCreate returns the resource named num, creating it if absent.
// It first attempts a shared-lock lookup (the common case, once the
// resource table has stabilized) and only takes the exclusive lock to
// insert a missing entry, re-checking under that lock to avoid a duplicate
// insert race — a deliberate correctness improvement over the original C++
// source, which inserts under only a shared lock (see SPEC_FULL.md §4.7).
func (v *VM) lookupOrCreate(num uint64) *resource {
	v.mu.RLock()
	r, ok := v.resources[num]
	v.mu.RUnlock()
	if ok {
		return r
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := v.resources[num]; ok {
		return r
	}
	r = newResource()
	v.resources[num] = r
	return r
}

// Lock blocks the calling goroutine until resource num becomes available
// for sessionID, or cancel becomes true, whichever happens first. It polls
// every 100ms to observe cancellation, matching the original's wait-loop.
// If cancelled before acquiring, it returns without taking the resource.
func (v *VM) Lock(sessionID uint64, num uint64, cancel *atomic.Bool) {
	r := v.lookupOrCreate(num)

	r.mu.Lock()
	defer r.mu.Unlock()
	for !cancel.Load() {
		for r.taken && !cancel.Load() {
			waitWithTimeout(r.cond, pollInterval)
		}
		if cancel.Load() {
			return
		}
		if !r.taken {
			r.taken = true
			r.holderID = sessionID
			return
		}
	}
}

// Unlock releases resource num and wakes one waiter. The caller need not be
// the current holder — unlock has no effect beyond clearing taken and
// notifying, regardless of who called it.
func (v *VM) Unlock(sessionID uint64, num uint64) {
	r := v.lookupOrCreate(num)
	r.mu.Lock()
	r.taken = false
	r.cond.Signal()
	r.mu.Unlock()
}

// Cleanup releases every resource currently held by sessionID and wakes one
// waiter on each. Resources held by other sessions are untouched.
func (v *VM) Cleanup(sessionID uint64) {
	v.mu.RLock()
	resources := make([]*resource, 0, len(v.resources))
	for _, r := range v.resources {
		resources = append(resources, r)
	}
	v.mu.RUnlock()

	for _, r := range resources {
		r.mu.Lock()
		if r.taken && r.holderID == sessionID {
			r.taken = false
			r.cond.Signal()
		}
		r.mu.Unlock()
	}
}

// Sleep blocks the calling goroutine for operand microseconds.
func Sleep(operandMicros uint64) {
	time.Sleep(time.Duration(operandMicros) * time.Microsecond)
}

// spinSink prevents the compiler from eliminating Loop's spin as dead code.
var spinSink uint64

// Loop spins operand iterations on-CPU without suspending, simulating CPU
// burn. Each iteration is kept compiler-opaque via an atomic add to a
// package-level sink.
func Loop(operand uint64) {
	for i := uint64(0); i < operand; i++ {
		atomic.AddUint64(&spinSink, 1)
	}
}

// waitWithTimeout wakes cond after at most d, in addition to any explicit
// Signal/Broadcast, by running a timer that signals the same condition.
// sync.Cond has no native timed wait; this emulates one without allocating
// a waiter slot per call.
func waitWithTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Signal()
		cond.L.Unlock()
	})
	cond.Wait()
	timer.Stop()
}
