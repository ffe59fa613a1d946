package httpproto

import (
	"log/slog"
	"strings"

	"github.com/AmbrSb/LServer/internal/session"
	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/internal/vm"
	"github.com/AmbrSb/LServer/internal/vscript"
)

const vscriptPrefix = "/vscript/"
const sinkholePrefix = "/sinkhole/"

// Http is the HTTP/1.1 upper protocol driving VScript programs over a
// session's body bytes, grounded on original_source/src/http.hpp.
type Http struct {
	vm      *vm.VM
	pools   *vscript.OpPools
	sess    *session.Session
	stats   *stats.SessionStats
	log     *slog.Logger
	sessID  uint64

	recvBuf       []byte
	headerReady   bool
	url           string
	keepAlive     bool
	expectedLen   uint64
	received      uint64
	prog          *vscript.Program
}

// New returns an Http protocol instance bound to the given VM and op
// pools. Attach must be called once the owning session is known, since the
// session reference is needed to send response bytes.
func New(v *vm.VM, pools *vscript.OpPools, sessionStats *stats.SessionStats, log *slog.Logger, sessionID uint64) *Http {
	return &Http{vm: v, pools: pools, stats: sessionStats, log: log, sessID: sessionID}
}

// Attach binds the session this protocol instance sends responses through.
func (h *Http) Attach(sess *session.Session) {
	h.sess = sess
}

func (h *Http) OnStart() session.Feedback {
	return session.Continue
}

func (h *Http) OnData(data []byte) session.Feedback {
	h.stats.AddBytesReceived(uint64(len(data)))
	h.recvBuf = append(h.recvBuf, data...)

	if !h.headerReady {
		hdr, consumed, status := TryParse(h.recvBuf)
		switch status {
		case NeedMoreData:
			return session.Continue
		case Failed:
			return session.CloseConn
		}
		h.received = uint64(len(h.recvBuf) - consumed)
		h.recvBuf = h.recvBuf[consumed:]
		h.headerReady = true
		h.url = hdr.URL
		h.keepAlive = hdr.KeepAlive
		h.expectedLen = hdr.ContentLength
		h.stats.AddTransaction()
	} else {
		h.received += uint64(len(data))
	}

	if h.prog == nil {
		switch {
		case strings.HasPrefix(h.url, vscriptPrefix):
			if h.expectedLen < 2 {
				return session.CloseConn
			}
			prog, consumed, status := vscript.TryParse(h.recvBuf, h.pools)
			switch status {
			case vscript.NeedMoreData:
				return session.Continue
			case vscript.Failed:
				return session.CloseConn
			}
			h.prog = prog
			h.recvBuf = h.recvBuf[consumed:]
		case strings.HasPrefix(h.url, sinkholePrefix):
			h.prog = vscript.NewProgram(h.pools)
		default:
			return session.CloseConn
		}
		h.prog.Attach(h.vm, h.sessID)
	}

	eof := h.received >= h.expectedLen
	fed := h.recvBuf
	h.recvBuf = nil
	if h.prog.Feed(fed, eof) {
		h.sendResponseHeader()
	}
	return session.Continue
}

func (h *Http) OnSent(n int) session.Feedback {
	h.stats.AddBytesSent(uint64(n))
	if h.prog.DownloadSize() > 0 {
		h.sess.Send(h.prog.TakeDownloadChunk())
		return session.Continue
	}

	keepAlive := h.keepAlive
	h.resetTransaction()
	if keepAlive {
		return session.Continue
	}
	return session.CloseConn
}

func (h *Http) OnError(err error) {
	h.log.Warn("session I/O error", "session_id", h.sessID, "error", err)
}

func (h *Http) OnClosed() {
	if h.prog != nil {
		h.prog.Cleanup()
	}
}

func (h *Http) sendResponseHeader() {
	h.sess.Send(GenerateResponseHeader(h.prog.ResultCode(), h.prog.DownloadSize(), h.keepAlive))
}

// resetTransaction clears per-request state so the connection can serve
// another request when keep-alive is in effect.
func (h *Http) resetTransaction() {
	if h.prog != nil {
		h.prog.Reset()
		h.prog = nil
	}
	h.headerReady = false
	h.url = ""
	h.expectedLen = 0
	h.received = 0
	h.recvBuf = nil
}
