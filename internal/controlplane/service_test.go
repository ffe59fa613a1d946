package controlplane

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/AmbrSb/LServer/internal/lscontext"
	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/server"
)

type fakeBackend struct {
	samples   map[server.Handle]stats.Sample
	infos     map[server.Handle]stats.ServerInfo
	addErr    error
	deactErr  error
	addIndex  int
}

func (f *fakeBackend) GetStats() map[server.Handle]stats.Sample             { return f.samples }
func (f *fakeBackend) GetServersInfo() map[server.Handle]stats.ServerInfo   { return f.infos }
func (f *fakeBackend) AddContext(server.Handle, int) (int, error)           { return f.addIndex, f.addErr }
func (f *fakeBackend) DeactivateContext(server.Handle, int) error          { return f.deactErr }

func TestGetStatsReturnsOneRecordPerServer(t *testing.T) {
	backend := &fakeBackend{samples: map[server.Handle]stats.Sample{
		1: {AcceptedCnt: 5, SessionPoolStats: stats.PoolStats{NumItemsTotal: 10, NumItemsInFlight: 2}},
	}}
	svc := NewStatsService(backend)

	resp, err := svc.getStats(context.Background(), &GetStatsRequest{})
	if err != nil {
		t.Fatalf("getStats: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(resp.Records))
	}
	if resp.Records[0].ServerID != 1 || resp.Records[0].Accepted != 5 {
		t.Fatalf("unexpected record: %+v", resp.Records[0])
	}
}

func TestAddContextMapsErrorToFailedPrecondition(t *testing.T) {
	backend := &fakeBackend{addErr: lscontext.ErrMaxWorkersReached}
	svc := NewStatsService(backend)

	_, err := svc.addContext(context.Background(), &AddContextRequest{ServerID: 1, NumThreads: 2})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := status.Code(err); got != codes.FailedPrecondition {
		t.Fatalf("status code = %v, want %v", got, codes.FailedPrecondition)
	}
}

func TestDeactivateContextSucceeds(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewStatsService(backend)

	resp, err := svc.deactivateContext(context.Background(), &DeactivateContextRequest{ServerID: 1, Index: 0})
	if err != nil {
		t.Fatalf("deactivateContext: %v", err)
	}
	if resp.StatusCode != 0 {
		t.Fatalf("StatusCode = %d, want 0", resp.StatusCode)
	}
}

func TestGetContextsInfoFlattensAcrossServers(t *testing.T) {
	backend := &fakeBackend{infos: map[server.Handle]stats.ServerInfo{
		1: {Contexts: []stats.ContextInfo{{Index: 0, ThreadsCnt: 1, Active: true}}},
	}}
	svc := NewStatsService(backend)

	resp, err := svc.getContextsInfo(context.Background(), &GetContextsInfoRequest{})
	if err != nil {
		t.Fatalf("getContextsInfo: %v", err)
	}
	if len(resp.Contexts) != 1 || resp.Contexts[0].ServerID != 1 {
		t.Fatalf("unexpected contexts: %+v", resp.Contexts)
	}
}
