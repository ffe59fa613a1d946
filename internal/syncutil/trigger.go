// Package syncutil provides small synchronization primitives used to
// coordinate graceful shutdown and single-shot cleanup across the server.
package syncutil

import (
	"errors"
	"sync"
)

// ErrAlreadyTriggered is returned by Trigger when the guard has already
// fired once. Triggering twice is a programming error: callers only ever
// trigger shutdown from one place.
var ErrAlreadyTriggered = errors.New("syncutil: trigger guard already triggered")

// TriggerGuard is a quiescence barrier. Callers performing work that must
// not race with shutdown call AcquireScopedGuard and hold the returned
// ScopedGuard for the duration of that work. Trigger blocks until every
// currently-held ScopedGuard has been released, then marks the guard fired;
// any ScopedGuard acquired afterwards is inert.
type TriggerGuard struct {
	mu        sync.Mutex
	cond      *sync.Cond
	triggered bool
	refCnt    int
}

// NewTriggerGuard returns a ready-to-use TriggerGuard.
func NewTriggerGuard() *TriggerGuard {
	g := &TriggerGuard{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// ScopedGuard blocks Trigger from completing for as long as it is held.
type ScopedGuard struct {
	guard     *TriggerGuard
	triggered bool
}

// Ok reports whether the guard was acquired before the trigger fired. A
// ScopedGuard acquired after Trigger is inert: callers must bail out of
// their scope without doing the guarded work.
func (s ScopedGuard) Ok() bool {
	return !s.triggered
}

// Release must be called exactly once, typically via defer, when the
// guarded scope ends.
func (s ScopedGuard) Release() {
	if s.triggered {
		return
	}
	s.guard.release()
}

// AcquireScopedGuard returns a token that keeps Trigger blocked until it is
// released. If the guard already fired, the returned token reports false
// from Ok and Release is a no-op.
func (g *TriggerGuard) AcquireScopedGuard() ScopedGuard {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.triggered {
		return ScopedGuard{guard: g, triggered: true}
	}
	g.refCnt++
	return ScopedGuard{guard: g}
}

func (g *TriggerGuard) release() {
	g.mu.Lock()
	g.refCnt--
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Triggered reports whether Trigger has already fired.
func (g *TriggerGuard) Triggered() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.triggered
}

// Trigger waits for every outstanding ScopedGuard to release, then marks
// the guard fired so that subsequent acquisitions become inert. Calling
// Trigger on an already-triggered guard returns ErrAlreadyTriggered.
func (g *TriggerGuard) Trigger() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.triggered {
		return ErrAlreadyTriggered
	}
	for g.refCnt > 0 {
		g.cond.Wait()
	}
	g.triggered = true
	return nil
}
