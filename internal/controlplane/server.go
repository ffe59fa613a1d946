package controlplane

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
)

// NewGRPCServer builds a *grpc.Server with StatsService registered and the
// JSON wire codec forced for every call, and starts it listening on addr.
// Callers should run the returned serve function in its own goroutine and
// call srv.GracefulStop() (or srv.Stop()) during shutdown.
func NewGRPCServer(addr string, backend Backend) (srv *grpc.Server, serve func() error, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("controlplane: listen %s: %w", addr, err)
	}

	srv = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	svc := NewStatsService(backend)
	srv.RegisterService(&ServiceDesc, svc)

	serve = func() error { return srv.Serve(ln) }
	return srv, serve, nil
}
