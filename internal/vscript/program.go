// Package vscript implements VScript: the small per-request scripting
// language whose operations run on the VM (internal/vm) to shape
// server-side response behavior. A Program is a priority queue of
// operations, fed bytes as the request body arrives, executing each
// operation once its exec_point has been reached.
package vscript

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/AmbrSb/LServer/internal/vm"
)

// Status is the outcome of an attempted parse.
type Status int

const (
	NeedMoreData Status = iota
	Failed
	Success
)

var errMalformed = errors.New("vscript: malformed program")

// Program is a per-request VScript execution state: the ascending-exec_point
// operation queue, the running byte count, the accumulated DOWNLOAD result,
// and a cancellation flag observed by LOCK's wait loop and by Feed itself.
type Program struct {
	pools *OpPools
	queue *opQueue

	bytesProcessed uint64
	downloadSize   uint64
	resultCode     int
	cancel         atomic.Bool
	finished       bool

	vm        *vm.VM
	sessionID uint64
}

// NewProgram returns an empty program drawing its ops from pools. Its
// result code defaults to 200: a program that never executes a DOWNLOAD op
// (an empty /sinkhole/ program, or a /vscript/ program with no DOWNLOAD)
// still represents a successful, empty-bodied response.
func NewProgram(pools *OpPools) *Program {
	return &Program{pools: pools, queue: newOpQueue(), resultCode: 200}
}

// Attach sets the VM and session identity a program executes against. It
// must be called before the first Feed; a freshly parsed program has no VM
// reference of its own, per SPEC_FULL.md §9's redesign note against a
// process-global VM.
func (p *Program) Attach(v *vm.VM, sessionID uint64) {
	p.vm = v
	p.sessionID = sessionID
}

// TryParse attempts to parse a VScript program from the front of buf, per
// the wire format: "N<LF>" where N is the decimal, non-zero byte length of
// a JSON array body, followed by exactly N bytes of JSON.
//
// On NeedMoreData or Failed, the returned program is nil and consumed is 0.
// On Success, consumed is the number of leading bytes of buf that made up
// the header and body; the caller must advance past them.
func TryParse(buf []byte, pools *OpPools) (prog *Program, consumed int, status Status) {
	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return nil, 0, NeedMoreData
	}
	header := buf[:nl]
	if len(header) == 0 {
		return nil, 0, Failed
	}
	n, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil || n == 0 {
		return nil, 0, Failed
	}

	bodyStart := nl + 1
	bodyEnd := bodyStart + int(n)
	if len(buf) < bodyEnd {
		return nil, 0, NeedMoreData
	}

	entries, err := parseOpEntries(buf[bodyStart:bodyEnd])
	if err != nil {
		return nil, 0, Failed
	}

	prog = NewProgram(pools)
	for i, e := range entries {
		prog.queue.push(pools.borrow(e.kind, e.execPoint, e.operand, uint64(i)))
	}
	return prog, bodyEnd, Success
}

type opEntry struct {
	execPoint uint64
	kind      Kind
	operand   uint64
}

// parseOpEntries parses the JSON array body: each element has exactly one
// key (the decimal exec_point, as a string), whose value has exactly one
// key (the op name) mapping to a decimal string operand.
func parseOpEntries(body []byte) ([]opEntry, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	entries := make([]opEntry, 0, len(raw))
	for _, obj := range raw {
		if len(obj) != 1 {
			return nil, errMalformed
		}
		for execStr, opVal := range obj {
			execPoint, err := strconv.ParseUint(execStr, 10, 64)
			if err != nil {
				return nil, err
			}

			var opObj map[string]string
			if err := json.Unmarshal(opVal, &opObj); err != nil {
				return nil, err
			}
			if len(opObj) != 1 {
				return nil, errMalformed
			}
			for name, operandStr := range opObj {
				kind, ok := parseKind(name)
				if !ok {
					return nil, errMalformed
				}
				operand, err := strconv.ParseUint(operandStr, 10, 64)
				if err != nil {
					return nil, err
				}
				entries = append(entries, opEntry{execPoint: execPoint, kind: kind, operand: operand})
			}
		}
	}
	return entries, nil
}

// Feed advances the program by len(data) bytes and executes every queued
// operation whose exec_point has now been reached, in ascending order.
// Execution stops early if Stop has been called. It returns whether the
// stream has ended (eof), which Feed also records as the program's
// finished state.
func (p *Program) Feed(data []byte, eof bool) bool {
	p.bytesProcessed += uint64(len(data))

	for !p.cancel.Load() && !p.queue.empty() && p.queue.top().ExecPoint <= p.bytesProcessed {
		op := p.queue.pop()
		p.execute(op)
		p.pools.release(op)
	}

	p.finished = eof
	return p.finished
}

func (p *Program) execute(op *Op) {
	switch op.Kind {
	case Download:
		p.resultCode = 200
		p.downloadSize = op.Operand
	case Lock:
		p.vm.Lock(p.sessionID, op.Operand, &p.cancel)
	case Unlock:
		p.vm.Unlock(p.sessionID, op.Operand)
	case Sleep:
		vm.Sleep(op.Operand)
	case Loop:
		vm.Loop(op.Operand)
	}
}

// Stop sets the cancellation flag observed by the LOCK wait-loop and by
// Feed's own execution loop.
func (p *Program) Stop() {
	p.cancel.Store(true)
}

// Cleanup releases any VM resources held by the program's session and
// drains the remaining op queue back to the shared pools, for use when a
// session aborts mid-program.
func (p *Program) Cleanup() {
	if p.vm != nil {
		p.vm.Cleanup(p.sessionID)
	}
	for !p.queue.empty() {
		op := p.queue.pop()
		p.pools.release(op)
	}
}

// Reset clears a program for reuse from a session pool, at every
// transaction boundary a keep-alive connection crosses, not only when the
// session itself closes: it force-releases any VM resources still held by
// the session (an unmatched LOCK leaks for the rest of the connection
// otherwise) and drains unexecuted ops back to the shared pools before
// zeroing its state.
func (p *Program) Reset() {
	if p.vm != nil {
		p.vm.Cleanup(p.sessionID)
	}
	for !p.queue.empty() {
		op := p.queue.pop()
		p.pools.release(op)
	}
	p.bytesProcessed = 0
	p.downloadSize = 0
	p.resultCode = 200
	p.cancel.Store(false)
	p.finished = false
	p.vm = nil
	p.sessionID = 0
}

func (p *Program) ResultCode() int        { return p.resultCode }
func (p *Program) DownloadSize() uint64   { return p.downloadSize }
func (p *Program) Finished() bool         { return p.finished }
func (p *Program) BytesProcessed() uint64 { return p.bytesProcessed }

// maxDownloadChunk caps a single simulated download write, matching the
// 64 KiB send-buffer ceiling in original_source/src/program.hpp's
// get_data.
const maxDownloadChunk = 64 * 1024

// TakeDownloadChunk returns up to maxDownloadChunk zero-filled bytes,
// decrementing the program's remaining download size by the same amount.
// Callers must only call this while DownloadSize() > 0.
func (p *Program) TakeDownloadChunk() []byte {
	n := p.downloadSize
	if n > maxDownloadChunk {
		n = maxDownloadChunk
	}
	p.downloadSize -= n
	return make([]byte, n)
}
