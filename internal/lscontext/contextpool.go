package lscontext

import (
	"sync"
	"sync/atomic"

	"github.com/AmbrSb/LServer/internal/stats"
)

// ContextPool is the round-robin pool of Contexts a server dispatches
// accepted connections across, grounded on
// original_source/src/lscontext.hpp's LSContextPool.
type ContextPool struct {
	mu               sync.RWMutex
	contexts         []*Context
	next             uint64
	maxWorkers       int
	strandPoolSize   int
	strandQueueDepth int
}

// NewContextPool constructs a pool with numWorkers contexts, each running
// numThreadsPerWorker goroutines, growable up to maxWorkers via AddContext.
func NewContextPool(numWorkers, maxWorkers, numThreadsPerWorker, strandPoolSize int) *ContextPool {
	cp := &ContextPool{
		maxWorkers:       maxWorkers,
		strandPoolSize:   strandPoolSize,
		strandQueueDepth: 64,
	}
	for i := 0; i < numWorkers; i++ {
		cp.contexts = append(cp.contexts, newContext(i, numThreadsPerWorker, strandPoolSize, cp.strandQueueDepth))
	}
	return cp
}

// Next selects the next active context in round-robin order and holds it.
// The caller must call Unhold on the returned context once the session it
// binds to this context ends. Returns nil if no active context exists.
func (cp *ContextPool) Next() *Context {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	n := len(cp.contexts)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := int(atomic.AddUint64(&cp.next, 1)-1) % n
		c := cp.contexts[idx]
		if c.Active() {
			c.Hold()
			return c
		}
	}
	return nil
}

// AddContext grows the pool by one context with numThreads worker
// goroutines, returning its index. It first searches for a deactivated
// slot with no remaining session references and reuses it in place,
// rather than always growing; it only fails with ErrMaxWorkersReached
// when no such slot exists and the pool is already at capacity. Grounded
// on the add_context() operation in original_source/src/lscontext.hpp and
// its control-plane RPC in original_source/src/control_server.cpp.
func (cp *ContextPool) AddContext(numThreads int) (int, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for _, c := range cp.contexts {
		if c.Reusable() {
			c.Reuse(numThreads)
			return c.Index(), nil
		}
	}
	if len(cp.contexts) >= cp.maxWorkers {
		return -1, ErrMaxWorkersReached
	}
	idx := len(cp.contexts)
	ctx := newContext(idx, numThreads, cp.strandPoolSize, cp.strandQueueDepth)
	cp.contexts = append(cp.contexts, ctx)
	return idx, nil
}

// DeactivateContext marks the context at idx inactive, refusing new
// sessions from Next. It fails with ErrContextBusy if sessions are still
// bound to it, ErrContextAlreadyInactive if idx was already deactivated,
// and ErrLastActiveContext if idx is the pool's only active context.
func (cp *ContextPool) DeactivateContext(idx int) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if idx < 0 || idx >= len(cp.contexts) {
		return ErrInvalidContext
	}
	c := cp.contexts[idx]
	if !c.Active() {
		return ErrContextAlreadyInactive
	}
	if c.HoldCount() > 0 {
		return ErrContextBusy
	}
	activeCount := 0
	for _, other := range cp.contexts {
		if other.Active() {
			activeCount++
		}
	}
	if activeCount <= 1 {
		return ErrLastActiveContext
	}
	c.Stop()
	return nil
}

// Info returns a snapshot of every context in the pool.
func (cp *ContextPool) Info() stats.ServerInfo {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	info := stats.ServerInfo{Contexts: make([]stats.ContextInfo, 0, len(cp.contexts))}
	for _, c := range cp.contexts {
		info.Contexts = append(info.Contexts, c.Info())
	}
	return info
}

// Stop halts every context's worker goroutines.
func (cp *ContextPool) Stop() {
	cp.mu.RLock()
	contexts := append([]*Context(nil), cp.contexts...)
	cp.mu.RUnlock()
	for _, c := range contexts {
		c.Stop()
	}
}
