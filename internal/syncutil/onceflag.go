package syncutil

import "sync"

// ResettableOnceFlag runs a function at most once between resets, similar
// to sync.Once but reusable. Session does not use it: Session.Close guards
// its single run with an atomic flag that Setup clears for each reuse.
type ResettableOnceFlag struct {
	mu      sync.Mutex
	invoked bool
}

// RunOnce runs f if it has not already run since the last Reset (or since
// construction). Concurrent callers are serialized; only the first one to
// arrive executes f.
func (f *ResettableOnceFlag) RunOnce(run func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invoked {
		return
	}
	f.invoked = true
	run()
}

// Reset clears the invoked flag so RunOnce will fire again.
func (f *ResettableOnceFlag) Reset() {
	f.mu.Lock()
	f.invoked = false
	f.mu.Unlock()
}
