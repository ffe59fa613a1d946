// Package server implements the acceptor/dispatch loop and the multi-server
// Manager, grounded on original_source/src/server.hpp and manager.hpp.
package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/AmbrSb/LServer/internal/lscontext"
	"github.com/AmbrSb/LServer/internal/session"
	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/internal/syncutil"
	"github.com/AmbrSb/LServer/internal/vbuf"
	"github.com/AmbrSb/LServer/internal/vm"
	"github.com/AmbrSb/LServer/internal/vscript"
)

// Config mirrors the configuration key table in SPEC_FULL.md §6: one
// server's listen endpoint, socket options, and context/session sizing.
type Config struct {
	ListenIP   string
	ListenPort int

	ReuseAddress          bool
	SeparateAcceptorThread bool

	SocketCloseLinger        bool
	SocketCloseLingerTimeout int

	NumWorkers         int
	MaxNumWorkers      int
	NumThreadsPerWorker int
	StrandPoolSize     int

	MaxSessionPoolSize int
	MaxTransferSize    int
	EagerSessionPool   bool
}

// ProtocolFactory builds the upper-layer protocol instance for a freshly
// accepted connection. Server passes its own shared VM and op pools so
// callers don't need a reference to the Server being constructed in order
// to build a factory for it.
type ProtocolFactory func(sessionID uint64, sessionStats *stats.SessionStats, v *vm.VM, pools *vscript.OpPools) session.Protocol

// Server owns one listener, one ContextPool, one session Pool, and the
// shared VM its protocol instances run VScript against. One process can
// host several Servers, each registered with a Manager.
type Server struct {
	cfg Config

	listener net.Listener
	contexts *lscontext.ContextPool
	sessions *session.Pool
	bufPool  *vbuf.BufferPool
	opPools  *vscript.OpPools
	vm       *vm.VM

	protoFactory ProtocolFactory

	shutdownGuard *syncutil.TriggerGuard
	acceptedCnt   atomic.Uint64
	sessionStats  sync.Map // session id -> *stats.SessionStats, for the control plane's aggregate read

	wg sync.WaitGroup
}
