package session

import (
	"sync"
	"sync/atomic"

	"github.com/AmbrSb/LServer/internal/lscontext"
	"github.com/AmbrSb/LServer/internal/vbuf"
)

// Conn is the minimal byte-stream surface Session needs. A net.Conn
// satisfies it; tests can supply a lighter fake without implementing the
// rest of net.Conn.
type Conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// Feedback is returned by every Protocol callback to tell the session
// engine whether to keep reading or tear the connection down.
type Feedback int

const (
	Continue Feedback = iota
	CloseConn
)

// Protocol is the upper-layer interface a Session drives. OnStart runs
// before the read and write goroutines start. OnData and OnSent are run
// through dispatch: on the session's strand when it holds one, otherwise
// on its Context's worker pool, so they run one at a time when that is a
// strand or a single-worker Context, and may overlap on a multi-worker
// Context when no strand was available. OnError is called directly from
// the read or write goroutine that saw the error, and OnClosed from
// whichever goroutine closes the session.
type Protocol interface {
	OnStart() Feedback
	OnData(data []byte) Feedback
	OnSent(n int) Feedback
	OnError(err error)
	OnClosed()
}

const readBufferSize = 64 * 1024

// Session binds one net.Conn to one Protocol instance for its lifetime.
// Sessions are pool-managed: Setup binds fresh per-use state, and Close
// (directly, or via Finalize under forced recovery) releases the session
// back to its owning pool through the onRelease callback.
type Session struct {
	id        uint64
	conn      Conn
	proto     Protocol
	sendQueue *vbuf.DynamicQueue
	onRelease func(*Session)

	ctx    *lscontext.Context
	strand *lscontext.Strand

	writeSignal chan struct{}
	closed      atomic.Bool
	wg          sync.WaitGroup
}

// New returns a bare session drawing outgoing buffers from bufPool. It must
// be bound with Setup before use.
func New(bufPool *vbuf.BufferPool) *Session {
	return &Session{sendQueue: vbuf.NewDynamicQueue(bufPool)}
}

// Setup binds this session to a freshly accepted connection, protocol
// instance, and owning Context, preparing it for reuse from a pool. ctx is
// held as a non-owning reference for this session's lifetime — its caller
// is responsible for taking the matching Context.Ref() before Setup and
// Context.Deref() once this session's onRelease hook runs.
func (s *Session) Setup(id uint64, conn Conn, proto Protocol, ctx *lscontext.Context, onRelease func(*Session)) {
	s.id = id
	s.conn = conn
	s.proto = proto
	s.ctx = ctx
	s.onRelease = onRelease
	s.writeSignal = make(chan struct{}, 1)
	s.closed.Store(false)
}

// ID returns the session's current identity, valid until the next Setup.
func (s *Session) ID() uint64 { return s.id }

// Start runs the protocol's start hook and, unless it requests immediate
// closure, borrows a strand (if its Context runs more than one worker
// goroutine) and spins up the read and write goroutines.
func (s *Session) Start() {
	if s.proto.OnStart() == CloseConn {
		s.Close()
		return
	}
	if s.ctx.NumThreads() > 1 {
		if strand, ok := s.ctx.BorrowStrand(); ok {
			s.strand = strand
		}
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
}

// dispatch runs work on this session's strand if it holds one, else
// directly on its Context's worker pool, and blocks until it completes —
// the Go analogue of posting a completion handler onto an io_context or
// strand and waiting on it, so that the Context's configured thread count
// actually bounds the concurrency of the blocking work a Protocol's
// callbacks can perform (notably the VM's LOCK/SLEEP/LOOP calls). If the
// Context has stopped between the triggering read/write and this call,
// work runs synchronously instead of being silently dropped.
func (s *Session) dispatch(work func() Feedback) Feedback {
	result := make(chan Feedback, 1)
	task := func() { result <- work() }

	posted := s.strand != nil && s.strand.Post(task)
	if !posted {
		posted = s.ctx.Post(task)
	}
	if !posted {
		return work()
	}
	return <-result
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if !s.closed.Load() {
				s.proto.OnError(err)
			}
			s.Close()
			return
		}
		if s.ctx.Stopped() {
			s.Close()
			return
		}
		data := append([]byte(nil), buf[:n]...)
		if s.dispatch(func() Feedback { return s.proto.OnData(data) }) == CloseConn {
			s.Close()
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for range s.writeSignal {
		for {
			buf := s.sendQueue.FrontOrNil()
			if buf == nil {
				break
			}
			n, err := s.conn.Write(buf.Bytes())
			s.sendQueue.Pop()
			if err != nil {
				if !s.closed.Load() {
					s.proto.OnError(err)
				}
				s.Close()
				return
			}
			if s.ctx.Stopped() {
				s.Close()
				return
			}
			if s.dispatch(func() Feedback { return s.proto.OnSent(n) }) == CloseConn {
				s.Close()
				return
			}
		}
	}
}

// Send enqueues data for asynchronous delivery, in order, behind any
// previously queued buffers not yet written.
func (s *Session) Send(data []byte) {
	buf := s.sendQueue.Prepare(len(data))
	buf.AppendBytes(data)
	s.sendQueue.Push(buf)
	select {
	case s.writeSignal <- struct{}{}:
	default:
	}
}

// Close tears the connection down exactly once: closes the socket, drains
// the outgoing queue back to its pool, notifies the protocol, and releases
// this session to its owning pool.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.conn.Close()
	close(s.writeSignal)
	s.sendQueue.Clear()
	s.proto.OnClosed()
	if s.strand != nil {
		s.ctx.ReturnStrand(s.strand)
		s.strand = nil
	}
	if s.onRelease != nil {
		s.onRelease(s)
	}
}

// Finalize satisfies objpool.Finalizer: forced recovery of a session under
// a deactivating context means closing its connection.
func (s *Session) Finalize() {
	s.Close()
}
