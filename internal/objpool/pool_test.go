package objpool

import "testing"

type testItem struct {
	finalized bool
}

func (t *testItem) Finalize() { t.finalized = true }

func TestBorrowPutBackInvariant(t *testing.T) {
	p, err := New[*testItem](2, false, func() *testItem { return &testItem{} })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, ok := p.Borrow(1)
	if !ok {
		t.Fatal("expected borrow to succeed")
	}
	b, ok := p.Borrow(2)
	if !ok {
		t.Fatal("expected second borrow to succeed")
	}
	if _, ok := p.Borrow(3); ok {
		t.Fatal("expected pool to be exhausted at max size")
	}

	if total, inFlight := p.Stats(); total != 2 || inFlight != 2 {
		t.Fatalf("got total=%d inFlight=%d, want 2,2", total, inFlight)
	}

	p.PutBack(a)
	if total, inFlight := p.Stats(); total != 2 || inFlight != 1 {
		t.Fatalf("got total=%d inFlight=%d, want 2,1", total, inFlight)
	}

	c, ok := p.Borrow(4)
	if !ok || c != a {
		t.Fatal("expected LIFO reuse of the most recently returned item")
	}
	p.PutBack(b)
	p.PutBack(c)
}

func TestEagerRequiresMaxSize(t *testing.T) {
	if _, err := New[*testItem](0, true, func() *testItem { return &testItem{} }); err != ErrInvalidArgs {
		t.Fatalf("got err=%v, want ErrInvalidArgs", err)
	}
}

func TestBorrowAsyncHandsOffDirectly(t *testing.T) {
	p, _ := New[*testItem](1, false, func() *testItem { return &testItem{} })
	a, _ := p.Borrow(1)

	received := make(chan *testItem, 1)
	_, ok, err := p.BorrowAsync(2, func(item *testItem) { received <- item })
	if ok || err != nil {
		t.Fatalf("expected pending waiter, got ok=%v err=%v", ok, err)
	}

	if _, _, err := p.BorrowAsync(3, func(*testItem) {}); err != ErrWaiterActive {
		t.Fatalf("got err=%v, want ErrWaiterActive", err)
	}

	p.PutBack(a)
	select {
	case got := <-received:
		if got != a {
			t.Fatal("waiter received wrong item")
		}
	default:
		t.Fatal("waiter callback was not invoked")
	}

	if total, inFlight := p.Stats(); total != 1 || inFlight != 1 {
		t.Fatalf("got total=%d inFlight=%d, want 1,1 (ownership transferred, not decremented)", total, inFlight)
	}
}

func TestRecoverFinalizesMatchingItems(t *testing.T) {
	p, _ := New[*testItem](2, false, func() *testItem { return &testItem{} })
	a, _ := p.Borrow(42)
	b, _ := p.Borrow(43)

	p.Recover(42)

	if !a.finalized {
		t.Fatal("expected item tagged with poi 42 to be finalized")
	}
	if b.finalized {
		t.Fatal("did not expect item tagged with a different poi to be finalized")
	}
}
