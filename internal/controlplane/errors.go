package controlplane

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/AmbrSb/LServer/internal/lscontext"
	"github.com/AmbrSb/LServer/server"
)

// toGRPCError maps this module's sentinel errors to gRPC status codes, the
// way sa6mwa-lockd's internal/core/transport/grpc_adapter.go maps its own
// core.Failure taxonomy onto codes.Code.
func toGRPCError(err error) error {
	switch {
	case errors.Is(err, server.ErrUnknownHandle):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, lscontext.ErrInvalidContext):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, lscontext.ErrContextBusy):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, lscontext.ErrLastActiveContext):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, lscontext.ErrContextAlreadyInactive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, lscontext.ErrMaxWorkersReached):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
