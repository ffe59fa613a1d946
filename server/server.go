package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/rs/xid"
	"golang.org/x/sys/unix"

	"github.com/AmbrSb/LServer/internal/lscontext"
	"github.com/AmbrSb/LServer/internal/session"
	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/internal/syncutil"
	"github.com/AmbrSb/LServer/internal/vbuf"
	"github.com/AmbrSb/LServer/internal/vm"
	"github.com/AmbrSb/LServer/internal/vscript"
)

// newSessionID mints a process-unique, roughly time-sortable session
// identity, replacing the address-as-identity trick the original gets for
// free from per-connection heap objects. xid.New is a 12-byte
// timestamp+machine+pid+counter value; the VM's resource table and the
// per-session stats map only need a uint64, so the 4-byte timestamp, the
// 3-byte per-process counter, and the low byte of the process id are
// folded into one. Ids minted in the same second differ by their counter.
func newSessionID() uint64 {
	id := xid.New()
	var b [8]byte
	copy(b[:4], id[:4])
	copy(b[4:7], id[9:12])
	b[7] = id[8]
	return binary.BigEndian.Uint64(b[:])
}

// SessionBinder is implemented by protocols that need a back-reference to
// the session they were bound to in order to send data. Server calls
// Attach right after borrowing a session, before starting it.
type SessionBinder interface {
	Attach(sess *session.Session)
}

const defaultResponseBufferCapacity = 512

// NewServer builds and binds a Server: opens, optionally SO_REUSEADDR's,
// and listens on cfg's endpoint; constructs its ContextPool and session
// Pool; and starts the acceptor goroutine. Grounded on
// original_source/src/server.hpp's constructor plus first dispatch() call.
func NewServer(cfg Config, protoFactory ProtocolFactory) (*Server, error) {
	lc := net.ListenConfig{}
	if cfg.ReuseAddress {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		}
	}

	addr := net.JoinHostPort(cfg.ListenIP, strconv.Itoa(cfg.ListenPort))
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}

	s := &Server{
		cfg:           cfg,
		listener:      ln,
		contexts:      lscontext.NewContextPool(cfg.NumWorkers, cfg.MaxNumWorkers, cfg.NumThreadsPerWorker, cfg.StrandPoolSize),
		bufPool:       vbuf.NewBufferPool(defaultResponseBufferCapacity),
		opPools:       vscript.NewOpPools(),
		vm:            vm.New(),
		protoFactory:  protoFactory,
		shutdownGuard: syncutil.NewTriggerGuard(),
	}
	s.sessions, err = session.NewPool(cfg.MaxSessionPoolSize, cfg.EagerSessionPool, s.bufPool)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// VM returns the server's shared VScript VM, for protocol factories that
// need to attach it to each program themselves rather than relying on
// Server's own dispatch wiring.
func (s *Server) VM() *vm.VM { return s.vm }

// OpPools returns the server's shared per-kind VScript op pools.
func (s *Server) OpPools() *vscript.OpPools { return s.opPools }

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		guard := s.shutdownGuard.AcquireScopedGuard()
		if !guard.Ok() {
			guard.Release()
			conn.Close()
			return
		}
		s.handleAccept(conn)
		guard.Release()
	}
}

func (s *Server) handleAccept(conn net.Conn) {
	ctx := s.contexts.Next()
	if ctx == nil {
		conn.Close()
		return
	}

	if tcp, ok := conn.(*net.TCPConn); ok && s.cfg.SocketCloseLinger {
		tcp.SetLinger(s.cfg.SocketCloseLingerTimeout)
	}

	s.acceptedCnt.Add(1)
	sessID := newSessionID()
	sessStats := &stats.SessionStats{}
	s.sessionStats.Store(sessID, sessStats)

	proto := s.protoFactory(sessID, sessStats, s.vm, s.opPools)
	ctx.Ref()
	sess, ok := s.sessions.BorrowWithHook(uint64(ctx.Index()), conn, proto, ctx, func() {
		ctx.Unhold()
		ctx.Deref()
	})
	if !ok {
		conn.Close()
		ctx.Unhold()
		ctx.Deref()
		return
	}
	if binder, ok := proto.(SessionBinder); ok {
		binder.Attach(sess)
	}

	if !ctx.Post(sess.Start) {
		// ctx stopped between Next() selecting it and this dispatch;
		// close_once synchronously rather than orphan the session.
		sess.Close()
	}
}

// Stop drains and tears the server down: closes the listener (unblocking
// the acceptor), triggers the shutdown guard (waiting for any in-flight
// accept handler to finish), then stops every Context.
func (s *Server) Stop() error {
	if err := s.listener.Close(); err != nil {
		return err
	}
	if err := s.shutdownGuard.Trigger(); err != nil {
		return err
	}
	s.contexts.Stop()
	return nil
}

// Wait blocks until the acceptor goroutine has exited.
func (s *Server) Wait() {
	s.wg.Wait()
}

// AddContext grows this server's ContextPool by one context.
func (s *Server) AddContext(numThreads int) (int, error) {
	return s.contexts.AddContext(numThreads)
}

// DeactivateContext marks the context at idx inactive and force-closes any
// sessions still tagged with it.
func (s *Server) DeactivateContext(idx int) error {
	if err := s.contexts.DeactivateContext(idx); err != nil {
		return err
	}
	s.sessions.RecoverContext(uint64(idx))
	return nil
}

// GetServerInfo returns a snapshot of every context in this server.
func (s *Server) GetServerInfo() stats.ServerInfo {
	return s.contexts.Info()
}

// GetStats returns this server's accepted-connection count, session pool
// counts, and the aggregated session-level delta since the previous call.
func (s *Server) GetStats() stats.Sample {
	delta := stats.SessionStatsDelta{}
	s.sessionStats.Range(func(_, v any) bool {
		ss := v.(*stats.SessionStats)
		delta.Add(ss.TakeDelta())
		return true
	})
	return stats.Sample{
		AcceptedCnt:       s.acceptedCnt.Load(),
		SessionPoolStats:  s.sessions.Stats(),
		SessionStatsDelta: delta,
	}
}
