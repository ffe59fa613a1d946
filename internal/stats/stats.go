// Package stats holds the sampled counters and snapshot types exposed by
// the control plane and periodic log output, grounded on
// original_source/src/stats.hpp.
package stats

import "sync/atomic"

// ContextInfo is a point-in-time snapshot of one Context's shape and load.
type ContextInfo struct {
	Index               int
	ThreadsCnt          int
	ActiveSessionsCnt   int
	StrandPoolSize      int
	StrandPoolInFlight  int
	Active              bool
}

// ServerInfo aggregates every context on one server.
type ServerInfo struct {
	Contexts []ContextInfo
}

// PoolStats is a snapshot of an objpool's total and in-flight counts.
type PoolStats struct {
	NumItemsTotal    int
	NumItemsInFlight int
}

// ServerStats accumulates server-lifetime counters that only ever grow.
type ServerStats struct {
	acceptedCnt atomic.Uint64
}

func (s *ServerStats) IncAccepted() { s.acceptedCnt.Add(1) }
func (s *ServerStats) Accepted() uint64 { return s.acceptedCnt.Load() }

// SessionStats accumulates per-connection counters whose deltas are read
// and reset on each sampling pass, matching the exchange-to-zero semantics
// of original_source/src/stats.hpp's SessionStatsDelta.
type SessionStats struct {
	transactionsCnt atomic.Uint64
	bytesReceived   atomic.Uint64
	bytesSent       atomic.Uint64
}

func (s *SessionStats) AddTransaction()          { s.transactionsCnt.Add(1) }
func (s *SessionStats) AddBytesReceived(n uint64) { s.bytesReceived.Add(n) }
func (s *SessionStats) AddBytesSent(n uint64)     { s.bytesSent.Add(n) }

// SessionStatsDelta is the reset-on-read snapshot of a SessionStats.
type SessionStatsDelta struct {
	TransactionsCnt uint64
	BytesReceived   uint64
	BytesSent       uint64
}

// TakeDelta atomically reads and resets every counter.
func (s *SessionStats) TakeDelta() SessionStatsDelta {
	return SessionStatsDelta{
		TransactionsCnt: s.transactionsCnt.Swap(0),
		BytesReceived:   s.bytesReceived.Swap(0),
		BytesSent:       s.bytesSent.Swap(0),
	}
}

// Add merges another delta into this one, for aggregating across a session
// pool's members.
func (d *SessionStatsDelta) Add(o SessionStatsDelta) {
	d.TransactionsCnt += o.TransactionsCnt
	d.BytesReceived += o.BytesReceived
	d.BytesSent += o.BytesSent
}

// Sample is one row of the sampled stats stream: a server's accept count,
// its session pool's item counts, and the aggregated session delta since
// the previous sample.
type Sample struct {
	AcceptedCnt       uint64
	SessionPoolStats  PoolStats
	SessionStatsDelta SessionStatsDelta
}
