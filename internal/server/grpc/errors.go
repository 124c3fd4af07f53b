package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusFor maps the error taxonomy onto gRPC codes. Only messages of
// client-facing errors are passed through; anything else becomes a bare
// internal error.
func statusFor(err error) (codes.Code, bool) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return codes.InvalidArgument, true
	case errors.Is(err, common.ErrAuthorizationDenied),
		errors.Is(err, common.ErrParticipantNotAllowed),
		errors.Is(err, common.ErrNotWhitelisted):
		return codes.PermissionDenied, true
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return codes.Unauthenticated, true
	case errors.Is(err, common.ErrChatNotFound),
		errors.Is(err, common.ErrMessageUnavailable),
		errors.Is(err, common.ErrorNotFound):
		return codes.NotFound, true
	case errors.Is(err, common.ErrorAlreadyExists):
		return codes.AlreadyExists, true
	case errors.Is(err, common.ErrRateLimited):
		return codes.ResourceExhausted, true
	case errors.Is(err, common.ErrStaleEpoch),
		errors.Is(err, common.ErrVersionConflict):
		return codes.Aborted, true
	case errors.Is(err, context.Canceled):
		return codes.Canceled, true
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, true
	default:
		return codes.Internal, false
	}
}

func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, public := statusFor(err)
	if !public {
		s.logger.Error(ctx, "request failed", "method", method, "error", err)
		return status.Error(code, "internal error")
	}
	if code == codes.PermissionDenied {
		s.logger.Info(ctx, "request denied", "method", method, "error", err)
	}
	return status.Error(code, err.Error())
}
