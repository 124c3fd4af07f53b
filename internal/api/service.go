package api

import (
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/arcticchat/internal/codec"
	"google.golang.org/grpc"
)

const ServiceName = "arctic.v1.Messaging"

// FullMethod returns the gRPC method path of the named RPC.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// MessagingServer is implemented by the transport layer and registered with
// RegisterMessagingServer.
type MessagingServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)

	Signup(context.Context, *SignupRequest) (*UserResponse, error)
	Me(context.Context, *Empty) (*UserResponse, error)
	GetUser(context.Context, *GetUserRequest) (*UserResponse, error)
	Ban(context.Context, *ModerateRequest) (*UserResponse, error)
	Timeout(context.Context, *ModerateRequest) (*UserResponse, error)
	Reinstate(context.Context, *ModerateRequest) (*UserResponse, error)
	SetRole(context.Context, *ModerateRequest) (*UserResponse, error)

	WhitelistCheck(context.Context, *WhitelistRequest) (*WhitelistCheckResponse, error)
	WhitelistAdd(context.Context, *WhitelistRequest) (*WhitelistEntryResponse, error)
	WhitelistRemove(context.Context, *WhitelistRequest) (*Empty, error)
	WhitelistList(context.Context, *Empty) (*WhitelistListResponse, error)

	CreateGroup(context.Context, *CreateGroupRequest) (*ChatResponse, error)
	OpenDM(context.Context, *OpenDMRequest) (*ChatResponse, error)
	GetChat(context.Context, *ChatRequest) (*ChatResponse, error)
	ListChats(context.Context, *Empty) (*ListChatsResponse, error)
	Participants(context.Context, *ChatRequest) (*ParticipantsResponse, error)
	AddParticipant(context.Context, *MembershipRequest) (*Empty, error)
	Kick(context.Context, *MembershipRequest) (*Empty, error)
	Promote(context.Context, *MembershipRequest) (*Empty, error)
	Demote(context.Context, *MembershipRequest) (*Empty, error)
	Leave(context.Context, *ChatRequest) (*Empty, error)
	RotateKey(context.Context, *ChatRequest) (*RotateKeyResponse, error)
	KeyBundle(context.Context, *KeyBundleRequest) (*KeyBundleResponse, error)

	Send(context.Context, *SendRequest) (*MessageResponse, error)
	MarkDelivered(context.Context, *MessageRequest) (*Empty, error)
	MarkRead(context.Context, *MessageRequest) (*Empty, error)
	DeleteMessage(context.Context, *MessageRequest) (*Empty, error)
	Receipts(context.Context, *MessageRequest) (*ReceiptsResponse, error)
	ListSince(context.Context, *ListSinceRequest) (*ListSinceResponse, error)
	Subscribe(*SubscribeRequest, SubscribeServer) error

	CreateTask(context.Context, *CreateTaskRequest) (*TaskResponse, error)
	ListTasks(context.Context, *Empty) (*ListTasksResponse, error)
	UpdateTask(context.Context, *UpdateTaskRequest) (*TaskResponse, error)

	UploadMedia(context.Context, *UploadMediaRequest) (*UploadMediaResponse, error)
}

// SubscribeServer is the server side of a Subscribe stream.
type SubscribeServer interface {
	Send(*Event) error
	grpc.ServerStream
}

type subscribeServer struct {
	grpc.ServerStream
}

func (s *subscribeServer) Send(ev *Event) error { return s.SendMsg(ev) }

// unary adapts a typed MessagingServer method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(MessagingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MessagingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessagingServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes arctic.v1.Messaging for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", MessagingServer.Ping),
		unary("Signup", MessagingServer.Signup),
		unary("Me", MessagingServer.Me),
		unary("GetUser", MessagingServer.GetUser),
		unary("Ban", MessagingServer.Ban),
		unary("Timeout", MessagingServer.Timeout),
		unary("Reinstate", MessagingServer.Reinstate),
		unary("SetRole", MessagingServer.SetRole),
		unary("WhitelistCheck", MessagingServer.WhitelistCheck),
		unary("WhitelistAdd", MessagingServer.WhitelistAdd),
		unary("WhitelistRemove", MessagingServer.WhitelistRemove),
		unary("WhitelistList", MessagingServer.WhitelistList),
		unary("CreateGroup", MessagingServer.CreateGroup),
		unary("OpenDM", MessagingServer.OpenDM),
		unary("GetChat", MessagingServer.GetChat),
		unary("ListChats", MessagingServer.ListChats),
		unary("Participants", MessagingServer.Participants),
		unary("AddParticipant", MessagingServer.AddParticipant),
		unary("Kick", MessagingServer.Kick),
		unary("Promote", MessagingServer.Promote),
		unary("Demote", MessagingServer.Demote),
		unary("Leave", MessagingServer.Leave),
		unary("RotateKey", MessagingServer.RotateKey),
		unary("KeyBundle", MessagingServer.KeyBundle),
		unary("Send", MessagingServer.Send),
		unary("MarkDelivered", MessagingServer.MarkDelivered),
		unary("MarkRead", MessagingServer.MarkRead),
		unary("DeleteMessage", MessagingServer.DeleteMessage),
		unary("Receipts", MessagingServer.Receipts),
		unary("ListSince", MessagingServer.ListSince),
		unary("CreateTask", MessagingServer.CreateTask),
		unary("ListTasks", MessagingServer.ListTasks),
		unary("UpdateTask", MessagingServer.UpdateTask),
		unary("UploadMedia", MessagingServer.UploadMedia),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(SubscribeRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(MessagingServer).Subscribe(in, &subscribeServer{stream})
			},
		},
	},
	Metadata: "arctic/v1/messaging",
}

func RegisterMessagingServer(s grpc.ServiceRegistrar, srv MessagingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// MessagingClient calls arctic.v1.Messaging over cc using the CBOR codec.
type MessagingClient struct {
	cc grpc.ClientConnInterface
}

func NewMessagingClient(cc grpc.ClientConnInterface) *MessagingClient {
	return &MessagingClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MessagingClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, "Ping", in, opts)
}

func (c *MessagingClient) Signup(ctx context.Context, in *SignupRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "Signup", in, opts)
}

func (c *MessagingClient) Me(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "Me", in, opts)
}

func (c *MessagingClient) GetUser(ctx context.Context, in *GetUserRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "GetUser", in, opts)
}

func (c *MessagingClient) Ban(ctx context.Context, in *ModerateRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "Ban", in, opts)
}

func (c *MessagingClient) Timeout(ctx context.Context, in *ModerateRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "Timeout", in, opts)
}

func (c *MessagingClient) Reinstate(ctx context.Context, in *ModerateRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "Reinstate", in, opts)
}

func (c *MessagingClient) SetRole(ctx context.Context, in *ModerateRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "SetRole", in, opts)
}

func (c *MessagingClient) WhitelistCheck(ctx context.Context, in *WhitelistRequest, opts ...grpc.CallOption) (*WhitelistCheckResponse, error) {
	return invoke[WhitelistCheckResponse](ctx, c.cc, "WhitelistCheck", in, opts)
}

func (c *MessagingClient) WhitelistAdd(ctx context.Context, in *WhitelistRequest, opts ...grpc.CallOption) (*WhitelistEntryResponse, error) {
	return invoke[WhitelistEntryResponse](ctx, c.cc, "WhitelistAdd", in, opts)
}

func (c *MessagingClient) WhitelistRemove(ctx context.Context, in *WhitelistRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "WhitelistRemove", in, opts)
}

func (c *MessagingClient) WhitelistList(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*WhitelistListResponse, error) {
	return invoke[WhitelistListResponse](ctx, c.cc, "WhitelistList", in, opts)
}

func (c *MessagingClient) CreateGroup(ctx context.Context, in *CreateGroupRequest, opts ...grpc.CallOption) (*ChatResponse, error) {
	return invoke[ChatResponse](ctx, c.cc, "CreateGroup", in, opts)
}

func (c *MessagingClient) OpenDM(ctx context.Context, in *OpenDMRequest, opts ...grpc.CallOption) (*ChatResponse, error) {
	return invoke[ChatResponse](ctx, c.cc, "OpenDM", in, opts)
}

func (c *MessagingClient) GetChat(ctx context.Context, in *ChatRequest, opts ...grpc.CallOption) (*ChatResponse, error) {
	return invoke[ChatResponse](ctx, c.cc, "GetChat", in, opts)
}

func (c *MessagingClient) ListChats(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListChatsResponse, error) {
	return invoke[ListChatsResponse](ctx, c.cc, "ListChats", in, opts)
}

func (c *MessagingClient) Participants(ctx context.Context, in *ChatRequest, opts ...grpc.CallOption) (*ParticipantsResponse, error) {
	return invoke[ParticipantsResponse](ctx, c.cc, "Participants", in, opts)
}

func (c *MessagingClient) AddParticipant(ctx context.Context, in *MembershipRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "AddParticipant", in, opts)
}

func (c *MessagingClient) Kick(ctx context.Context, in *MembershipRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "Kick", in, opts)
}

func (c *MessagingClient) Promote(ctx context.Context, in *MembershipRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "Promote", in, opts)
}

func (c *MessagingClient) Demote(ctx context.Context, in *MembershipRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "Demote", in, opts)
}

func (c *MessagingClient) Leave(ctx context.Context, in *ChatRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "Leave", in, opts)
}

func (c *MessagingClient) RotateKey(ctx context.Context, in *ChatRequest, opts ...grpc.CallOption) (*RotateKeyResponse, error) {
	return invoke[RotateKeyResponse](ctx, c.cc, "RotateKey", in, opts)
}

func (c *MessagingClient) KeyBundle(ctx context.Context, in *KeyBundleRequest, opts ...grpc.CallOption) (*KeyBundleResponse, error) {
	return invoke[KeyBundleResponse](ctx, c.cc, "KeyBundle", in, opts)
}

func (c *MessagingClient) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, "Send", in, opts)
}

func (c *MessagingClient) MarkDelivered(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "MarkDelivered", in, opts)
}

func (c *MessagingClient) MarkRead(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "MarkRead", in, opts)
}

func (c *MessagingClient) DeleteMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "DeleteMessage", in, opts)
}

func (c *MessagingClient) Receipts(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*ReceiptsResponse, error) {
	return invoke[ReceiptsResponse](ctx, c.cc, "Receipts", in, opts)
}

func (c *MessagingClient) ListSince(ctx context.Context, in *ListSinceRequest, opts ...grpc.CallOption) (*ListSinceResponse, error) {
	return invoke[ListSinceResponse](ctx, c.cc, "ListSince", in, opts)
}

func (c *MessagingClient) CreateTask(ctx context.Context, in *CreateTaskRequest, opts ...grpc.CallOption) (*TaskResponse, error) {
	return invoke[TaskResponse](ctx, c.cc, "CreateTask", in, opts)
}

func (c *MessagingClient) ListTasks(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListTasksResponse, error) {
	return invoke[ListTasksResponse](ctx, c.cc, "ListTasks", in, opts)
}

func (c *MessagingClient) UpdateTask(ctx context.Context, in *UpdateTaskRequest, opts ...grpc.CallOption) (*TaskResponse, error) {
	return invoke[TaskResponse](ctx, c.cc, "UpdateTask", in, opts)
}

func (c *MessagingClient) UploadMedia(ctx context.Context, in *UploadMediaRequest, opts ...grpc.CallOption) (*UploadMediaResponse, error) {
	return invoke[UploadMediaResponse](ctx, c.cc, "UploadMedia", in, opts)
}

// EventStream is the client side of a Subscribe stream.
type EventStream interface {
	Recv() (*Event, error)
	grpc.ClientStream
}

type eventStream struct {
	grpc.ClientStream
}

func (s *eventStream) Recv() (*Event, error) {
	ev := new(Event)
	if err := s.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *MessagingClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (EventStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("Subscribe"), opts...)
	if err != nil {
		return nil, err
	}
	// io.EOF means the server already ended the stream; Recv reports why.
	if err := stream.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &eventStream{stream}, nil
}
