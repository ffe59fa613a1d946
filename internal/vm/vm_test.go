package vm

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestLockUnlockRoundTrip(t *testing.T) {
	v := New()
	var cancel atomic.Bool

	v.Lock(1, 10, &cancel)
	done := make(chan struct{})
	go func() {
		v.Lock(2, 10, &cancel)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second locker acquired resource while first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	v.Unlock(1, 10)
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("second locker never acquired resource after unlock")
	}
	v.Unlock(2, 10)
}

func TestLockCancelReturnsWithoutAcquiring(t *testing.T) {
	v := New()
	var cancelA, cancelB atomic.Bool

	v.Lock(1, 20, &cancelA)

	acquired := make(chan struct{})
	go func() {
		v.Lock(2, 20, &cancelB)
		close(acquired)
	}()

	cancelB.Store(true)
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled locker never returned")
	}

	// Resource must still be held by session 1, not touched by the
	// cancelled waiter.
	var cancelC atomic.Bool
	gotIt := make(chan struct{})
	go func() {
		v.Lock(3, 20, &cancelC)
		close(gotIt)
	}()
	select {
	case <-gotIt:
		t.Fatal("third locker acquired a resource that should still be held")
	case <-time.After(50 * time.Millisecond):
	}
	cancelC.Store(true)
	<-gotIt
}

func TestCleanupReleasesOnlyMatchingHolder(t *testing.T) {
	v := New()
	var cancel atomic.Bool

	v.Lock(1, 30, &cancel)
	v.Lock(2, 31, &cancel)

	v.Cleanup(1)

	acquired := make(chan struct{})
	go func() {
		v.Lock(9, 30, &cancel)
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("resource 30 was not released by Cleanup(1)")
	}

	stillHeld := make(chan struct{})
	go func() {
		v.Lock(9, 31, &cancel)
		close(stillHeld)
	}()
	select {
	case <-stillHeld:
		t.Fatal("resource 31 should still be held by session 2")
	case <-time.After(50 * time.Millisecond):
	}
}
