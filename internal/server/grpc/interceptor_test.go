package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/api"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/auth"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(secret string) *GRPCServer {
	return NewGRPCServer("", logging.Discard(), Services{}, events.NewBroker(1), secret)
}

func TestInterceptor_PublicMethodWithoutToken(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethod("Ping")}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		_, err := identityFrom(ctx)
		assert.Error(t, err)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_RequiresToken(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethod("Send")}
	h := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, "garbage"))
	_, err = s.accessTokenInterceptor(ctx, nil, info, h)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, common.ErrInvalidToken.Error(), status.Convert(err).Message())
}

func TestInterceptor_InjectsIdentity(t *testing.T) {
	s := newTestServer("secret")
	want := models.Identity{UserID: "u1", Email: "u1@arctic.test"}
	tok, err := auth.GenerateToken(want, []byte("secret"), time.Minute)
	require.NoError(t, err)

	for _, md := range []metadata.MD{
		metadata.Pairs(common.AccessTokenHeaderName, tok),
		metadata.Pairs("authorization", "Bearer "+tok),
	} {
		ctx := metadata.NewIncomingContext(context.Background(), md)
		info := &grpc.UnaryServerInfo{FullMethod: api.FullMethod("Me")}
		_, err := s.accessTokenInterceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			got, err := identityFrom(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			return nil, nil
		})
		require.NoError(t, err)
	}
}
