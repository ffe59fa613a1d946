// Package controlplane implements the gRPC control-plane service described
// in spec.md §6, grounded on original_source/src/control_server.hpp/.cpp
// (a StatsService bound to control_server.ip:port). Wire types are
// hand-written and JSON-encoded (see codec.go) rather than protobuf, since
// no .proto can be compiled in this environment.
package controlplane

import (
	"context"
	"time"

	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/server"
)

// Backend is the subset of *server.Manager the control plane drives. It
// exists so the service can be exercised with a fake in tests without
// standing up real listeners.
type Backend interface {
	GetStats() map[server.Handle]stats.Sample
	GetServersInfo() map[server.Handle]stats.ServerInfo
	AddContext(h server.Handle, numThreads int) (int, error)
	DeactivateContext(h server.Handle, idx int) error
}

// StatsRecord is one server's entry in a GetStats response, matching
// spec.md §6's tuple shape.
type StatsRecord struct {
	ServerID          uint64 `json:"server_id"`
	TimeUs            int64  `json:"time_us"`
	Accepted          uint64 `json:"accepted"`
	SessionsTotal     int    `json:"sessions_total"`
	SessionsInFlight  int    `json:"sessions_in_flight"`
	TransactionsDelta uint64 `json:"transactions_delta"`
	BytesReceivedDelta uint64 `json:"bytes_received_delta"`
	BytesSentDelta    uint64 `json:"bytes_sent_delta"`
}

// GetStatsRequest carries no fields; every registered server is reported.
type GetStatsRequest struct{}

// GetStatsResponse is one record per server.
type GetStatsResponse struct {
	Records []StatsRecord `json:"records"`
}

// AddContextRequest identifies which server to grow and by how many
// threads.
type AddContextRequest struct {
	ServerID   uint64 `json:"server_id"`
	NumThreads int    `json:"num_threads"`
}

// AddContextResponse reports the new context's index.
type AddContextResponse struct {
	Index int `json:"index"`
}

// DeactivateContextRequest identifies the server and context index to
// deactivate.
type DeactivateContextRequest struct {
	ServerID uint64 `json:"server_id"`
	Index    int    `json:"index"`
}

// DeactivateContextResponse carries status code 0 on success. Every
// failure, a busy context included, is returned as a gRPC error instead of
// a non-zero status code.
type DeactivateContextResponse struct {
	StatusCode int `json:"status_code"`
}

// ContextInfoRecord mirrors stats.ContextInfo for one context, tagged with
// the server it belongs to.
type ContextInfoRecord struct {
	ServerID           uint64 `json:"server_id"`
	Index              int    `json:"index"`
	ThreadsCnt         int    `json:"threads"`
	ActiveSessionsCnt  int    `json:"active_sessions"`
	StrandPoolSize     int    `json:"strand_pool_size"`
	StrandPoolInFlight int    `json:"strand_pool_in_flight"`
	Active             bool   `json:"active"`
}

// GetContextsInfoRequest carries no fields; every registered server's
// contexts are reported.
type GetContextsInfoRequest struct{}

// GetContextsInfoResponse is one inner list per server, flattened with
// each record tagged by ServerID since JSON has no native nested-array-
// keyed-by-uint64 shape.
type GetContextsInfoResponse struct {
	Contexts []ContextInfoRecord `json:"contexts"`
}

// StatsService implements the four control-plane RPCs against a Backend.
type StatsService struct {
	backend Backend
}

// NewStatsService returns a StatsService driving backend.
func NewStatsService(backend Backend) *StatsService {
	return &StatsService{backend: backend}
}

func (s *StatsService) getStats(_ context.Context, _ *GetStatsRequest) (*GetStatsResponse, error) {
	now := time.Now().UnixMicro()
	samples := s.backend.GetStats()
	resp := &GetStatsResponse{Records: make([]StatsRecord, 0, len(samples))}
	for h, sample := range samples {
		resp.Records = append(resp.Records, StatsRecord{
			ServerID:           uint64(h),
			TimeUs:             now,
			Accepted:           sample.AcceptedCnt,
			SessionsTotal:      sample.SessionPoolStats.NumItemsTotal,
			SessionsInFlight:   sample.SessionPoolStats.NumItemsInFlight,
			TransactionsDelta:  sample.SessionStatsDelta.TransactionsCnt,
			BytesReceivedDelta: sample.SessionStatsDelta.BytesReceived,
			BytesSentDelta:     sample.SessionStatsDelta.BytesSent,
		})
	}
	return resp, nil
}

func (s *StatsService) addContext(_ context.Context, req *AddContextRequest) (*AddContextResponse, error) {
	idx, err := s.backend.AddContext(server.Handle(req.ServerID), req.NumThreads)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &AddContextResponse{Index: idx}, nil
}

func (s *StatsService) deactivateContext(_ context.Context, req *DeactivateContextRequest) (*DeactivateContextResponse, error) {
	if err := s.backend.DeactivateContext(server.Handle(req.ServerID), req.Index); err != nil {
		return nil, toGRPCError(err)
	}
	return &DeactivateContextResponse{StatusCode: 0}, nil
}

func (s *StatsService) getContextsInfo(_ context.Context, _ *GetContextsInfoRequest) (*GetContextsInfoResponse, error) {
	infos := s.backend.GetServersInfo()
	resp := &GetContextsInfoResponse{}
	for h, info := range infos {
		for _, c := range info.Contexts {
			resp.Contexts = append(resp.Contexts, ContextInfoRecord{
				ServerID:           uint64(h),
				Index:              c.Index,
				ThreadsCnt:         c.ThreadsCnt,
				ActiveSessionsCnt:  c.ActiveSessionsCnt,
				StrandPoolSize:     c.StrandPoolSize,
				StrandPoolInFlight: c.StrandPoolInFlight,
				Active:             c.Active,
			})
		}
	}
	return resp, nil
}
