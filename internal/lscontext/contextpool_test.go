package lscontext

import "testing"

func TestNextRoundRobinsAndHolds(t *testing.T) {
	cp := NewContextPool(3, 8, 1, 2)
	defer cp.Stop()

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		c := cp.Next()
		if c == nil {
			t.Fatal("expected an active context")
		}
		if c.HoldCount() != 1 {
			t.Fatalf("context %d hold count = %d, want 1", c.index, c.HoldCount())
		}
		seen[c.index] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct contexts visited, got %d", len(seen))
	}
}

func TestDeactivateContextRefusesWhileBusy(t *testing.T) {
	cp := NewContextPool(2, 4, 1, 2)
	defer cp.Stop()

	c := cp.contexts[0]
	c.Hold()
	if err := cp.DeactivateContext(0); err != ErrContextBusy {
		t.Fatalf("got err=%v, want ErrContextBusy", err)
	}
	c.Unhold()
	if err := cp.DeactivateContext(0); err != nil {
		t.Fatalf("got err=%v, want nil", err)
	}
	if err := cp.DeactivateContext(0); err != ErrContextAlreadyInactive {
		t.Fatalf("got err=%v, want ErrContextAlreadyInactive", err)
	}
	if err := cp.DeactivateContext(1); err != ErrLastActiveContext {
		t.Fatalf("got err=%v, want ErrLastActiveContext", err)
	}
}

func TestAddContextRespectsMaxWorkers(t *testing.T) {
	cp := NewContextPool(1, 2, 1, 2)
	defer cp.Stop()

	if _, err := cp.AddContext(1); err != nil {
		t.Fatalf("got err=%v, want nil", err)
	}
	if _, err := cp.AddContext(1); err != ErrMaxWorkersReached {
		t.Fatalf("got err=%v, want ErrMaxWorkersReached", err)
	}
}

func TestAddContextReusesDeactivatedSlot(t *testing.T) {
	cp := NewContextPool(2, 2, 1, 2)
	defer cp.Stop()

	if err := cp.DeactivateContext(0); err != nil {
		t.Fatalf("DeactivateContext: got err=%v, want nil", err)
	}
	idx, err := cp.AddContext(3)
	if err != nil {
		t.Fatalf("AddContext: got err=%v, want nil", err)
	}
	if idx != 0 {
		t.Fatalf("got idx=%d, want 0 (reused slot instead of growing)", idx)
	}
	if len(cp.contexts) != 2 {
		t.Fatalf("got %d contexts, want 2 (no growth)", len(cp.contexts))
	}
	if !cp.contexts[0].Active() {
		t.Fatal("expected reused context to be active")
	}
	if cp.contexts[0].NumThreads() != 3 {
		t.Fatalf("got %d threads, want 3", cp.contexts[0].NumThreads())
	}
}

func TestReusableRequiresNoRemainingRefs(t *testing.T) {
	cp := NewContextPool(2, 3, 1, 2)
	defer cp.Stop()

	c := cp.contexts[0]
	c.Ref()
	if err := cp.DeactivateContext(0); err != nil {
		t.Fatalf("got err=%v, want nil", err)
	}
	if c.Reusable() {
		t.Fatal("expected a deactivated context with a live ref to not be reusable")
	}
	if _, err := cp.AddContext(1); err != nil {
		t.Fatalf("got err=%v, want nil", err)
	}
	if len(cp.contexts) != 3 {
		t.Fatalf("got %d contexts, want 3 (referenced slot must not be reused)", len(cp.contexts))
	}

	c.Deref()
	if !c.Reusable() {
		t.Fatal("expected context to be reusable once its last ref is released")
	}
}

func TestBorrowStrandExecutesSerially(t *testing.T) {
	cp := NewContextPool(1, 1, 2, 1)
	defer cp.Stop()

	c := cp.Next()
	defer c.Unhold()

	s, ok := c.BorrowStrand()
	if !ok {
		t.Fatal("expected a strand to be available")
	}
	defer c.ReturnStrand(s)

	results := make(chan int, 2)
	s.Post(func() { results <- 1 })
	s.Post(func() { results <- 2 })

	if first := <-results; first != 1 {
		t.Fatalf("got %d first, want 1 (posted order)", first)
	}
	if second := <-results; second != 2 {
		t.Fatalf("got %d second, want 2 (posted order)", second)
	}
}
