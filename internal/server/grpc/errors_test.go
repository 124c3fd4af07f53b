package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.Validation("bad"), codes.InvalidArgument},
		{&common.AuthorizationDeniedError{Action: "ban", Reason: "insufficient_weight"}, codes.PermissionDenied},
		{fmt.Errorf("append: %w", common.ErrParticipantNotAllowed), codes.PermissionDenied},
		{common.ErrNotWhitelisted, codes.PermissionDenied},
		{common.ErrorUnauthorized, codes.Unauthenticated},
		{common.ErrChatNotFound, codes.NotFound},
		{common.ErrMessageUnavailable, codes.NotFound},
		{fmt.Errorf("get: %w", common.ErrorNotFound), codes.NotFound},
		{common.ErrorAlreadyExists, codes.AlreadyExists},
		{common.ErrRateLimited, codes.ResourceExhausted},
		{&common.StaleEpochError{ChatID: "c", Requested: 1, Current: 2}, codes.Aborted},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{common.ErrDecryption, codes.Internal},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToStatus_HidesInternalDetail(t *testing.T) {
	s := NewGRPCServer("", logging.Discard(), Services{}, events.NewBroker(1), "k")
	ctx := context.Background()

	err := s.toStatus(ctx, "Send", errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal error", status.Convert(err).Message())

	err = s.toStatus(ctx, "Send", common.Validation("message is empty"))
	assert.Contains(t, status.Convert(err).Message(), "message is empty")

	already := status.Error(codes.Unauthenticated, "missing token")
	assert.Equal(t, already, s.toStatus(ctx, "Send", already))
	assert.NoError(t, s.toStatus(ctx, "Send", nil))
}
