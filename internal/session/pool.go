package session

import (
	"github.com/AmbrSb/LServer/internal/lscontext"
	"github.com/AmbrSb/LServer/internal/objpool"
	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/internal/vbuf"
)

// Pool is the shared pool of reusable sessions a server borrows from on
// every accept, grounded on original_source/src/session_pool.hpp. Each
// borrowed session is tagged with the index of the Context it is bound to
// (its POI), so that Server.DeactivateContext can force-recover every
// session still bound to a context being torn down.
type Pool struct {
	pool *objpool.Pool[*Session]
}

// NewPool returns a pool bounded to maxSize sessions, or unbounded if
// maxSize is 0, drawing outgoing buffers from bufPool and eagerly
// pre-creating maxSize sessions if eager is true.
func NewPool(maxSize int, eager bool, bufPool *vbuf.BufferPool) (*Pool, error) {
	p, err := objpool.New[*Session](maxSize, eager, func() *Session {
		return New(bufPool)
	})
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

// Borrow rents a session tagged with contextIndex as its POI and binds it
// to conn, proto, and the Context it was dispatched against. Returns false
// if the pool is exhausted at its configured max size.
func (p *Pool) Borrow(contextIndex uint64, conn Conn, proto Protocol, ctx *lscontext.Context) (*Session, bool) {
	return p.BorrowWithHook(contextIndex, conn, proto, ctx, nil)
}

// BorrowWithHook is Borrow plus an additional onClosed hook invoked right
// before the session is returned to the pool — e.g. to release the hold
// and reference a Context placed on itself when it was selected for this
// session.
func (p *Pool) BorrowWithHook(contextIndex uint64, conn Conn, proto Protocol, ctx *lscontext.Context, onClosed func()) (*Session, bool) {
	s, ok := p.pool.Borrow(contextIndex)
	if !ok {
		return nil, false
	}
	s.Setup(contextIndex, conn, proto, ctx, func(released *Session) {
		if onClosed != nil {
			onClosed()
		}
		p.pool.PutBack(released)
	})
	return s, true
}

// RecoverContext force-closes every session currently tagged with
// contextIndex, e.g. when its Context is being deactivated.
func (p *Pool) RecoverContext(contextIndex uint64) {
	p.pool.Recover(contextIndex)
}

// Stats returns the pool's total and in-flight session counts.
func (p *Pool) Stats() stats.PoolStats {
	total, inFlight := p.pool.Stats()
	return stats.PoolStats{NumItemsTotal: total, NumItemsInFlight: inFlight}
}
