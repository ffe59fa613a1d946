package lscontext

import "github.com/AmbrSb/LServer/internal/objpool"

// Task is a unit of work posted to a Strand.
type Task func()

// Strand is a serial executor: tasks posted to it run one at a time, in
// post order, on a single dedicated goroutine — the Go analogue of the
// original's asio::strand serialization guarantee, grounded on
// original_source/src/lscontext.hpp's strand pool.
type Strand struct {
	tasks chan Task
}

func newStrand(queueDepth int) *Strand {
	s := &Strand{tasks: make(chan Task, queueDepth)}
	go s.run()
	return s
}

func (s *Strand) run() {
	for t := range s.tasks {
		t()
	}
}

// Post enqueues t for serial execution. It returns false if the strand's
// queue is full.
func (s *Strand) Post(t Task) bool {
	select {
	case s.tasks <- t:
		return true
	default:
		return false
	}
}

// Finalize satisfies objpool.Finalizer. Strands are recycled like buffers
// and never need forced recovery.
func (*Strand) Finalize() {}

// StrandPool is a fixed-size, eagerly populated pool of strands borrowed by
// sessions running on a multi-threaded Context.
type StrandPool struct {
	pool *objpool.Pool[*Strand]
	size int
}

// NewStrandPool returns a pool of size strands, each with the given queue
// depth.
func NewStrandPool(size, queueDepth int) *StrandPool {
	p, _ := objpool.New[*Strand](size, true, func() *Strand { return newStrand(queueDepth) })
	return &StrandPool{pool: p, size: size}
}

func (sp *StrandPool) Borrow() (*Strand, bool) {
	return sp.pool.Borrow(objpool.InvalidPOI)
}

func (sp *StrandPool) PutBack(s *Strand) {
	sp.pool.PutBack(s)
}

// Stats returns the pool's total and in-flight strand counts.
func (sp *StrandPool) Stats() (total, inFlight int) {
	return sp.pool.Stats()
}
