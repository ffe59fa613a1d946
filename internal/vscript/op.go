package vscript

import "github.com/AmbrSb/LServer/internal/objpool"

// Kind tags a VScript operation.
type Kind int

const (
	Download Kind = iota
	Lock
	Unlock
	Sleep
	Loop
)

func (k Kind) String() string {
	switch k {
	case Download:
		return "DOWNLOAD"
	case Lock:
		return "LOCK"
	case Unlock:
		return "UNLOCK"
	case Sleep:
		return "SLEEP"
	case Loop:
		return "LOOP"
	default:
		return "UNKNOWN"
	}
}

func parseKind(name string) (Kind, bool) {
	switch name {
	case "DOWNLOAD":
		return Download, true
	case "LOCK":
		return Lock, true
	case "UNLOCK":
		return Unlock, true
	case "SLEEP":
		return Sleep, true
	case "LOOP":
		return Loop, true
	default:
		return 0, false
	}
}

// Op is a single VScript operation: a kind, the byte offset at which it
// becomes eligible to run (ExecPoint), and its 64-bit operand. Ops are
// borrowed from a per-kind pool at parse time and returned once the
// program has executed and consumed them.
type Op struct {
	Kind      Kind
	ExecPoint uint64
	Operand   uint64
	seq       uint64 // insertion order, for deterministic tie-breaking
}

// Finalize satisfies objpool.Finalizer. Ops never need forced recovery —
// they are synchronously consumed within a single feed() call — so this is
// a no-op.
func (*Op) Finalize() {}

// OpPools holds one objpool.Pool per operation kind, grounded on
// original_source/src/basic_pool.hpp's per-type static pool, generalized
// here to an explicit, injected set of pools rather than a process-global.
// A single OpPools is constructed once per server and shared by every
// Program it parses.
type OpPools struct {
	byKind [5]*objpool.Pool[*Op]
}

// NewOpPools returns a fresh, unbounded set of per-kind op pools.
func NewOpPools() *OpPools {
	p := &OpPools{}
	for k := range p.byKind {
		pool, _ := objpool.New[*Op](0, false, func() *Op { return &Op{} })
		p.byKind[k] = pool
	}
	return p
}

func (p *OpPools) borrow(kind Kind, execPoint, operand, seq uint64) *Op {
	op, _ := p.byKind[kind].Borrow(objpool.InvalidPOI)
	op.Kind = kind
	op.ExecPoint = execPoint
	op.Operand = operand
	op.seq = seq
	return op
}

func (p *OpPools) release(op *Op) {
	p.byKind[op.Kind].PutBack(op)
}
