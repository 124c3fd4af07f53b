// Package grpc exposes the domain services as the arctic.v1.Messaging gRPC
// service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/arcticchat/internal/api"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
	"github.com/dmitrijs2005/arcticchat/internal/server/services"
	"google.golang.org/grpc"
)

// maxMessageBytes leaves room for a full media upload plus framing.
const maxMessageBytes = common.MaxMediaBytes + 1<<20

// Services bundles the domain services the transport dispatches to.
type Services struct {
	Users     *services.UserService
	Whitelist *services.WhitelistService
	Chats     *services.ChatService
	Messages  *services.MessageService
	Tasks     *services.TaskService
	Media     *services.MediaService
}

type GRPCServer struct {
	address   string
	svc       Services
	broker    *events.Broker
	logger    logging.Logger
	jwtSecret []byte
}

var _ api.MessagingServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, svc Services, broker *events.Broker, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		svc:       svc,
		broker:    broker,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
		grpc.MaxRecvMsgSize(maxMessageBytes),
	)
	api.RegisterMessagingServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	<-stopped
	return nil
}
