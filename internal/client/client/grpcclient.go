package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/api"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/compressx"
	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/dmitrijs2005/arcticchat/internal/server/keystore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *api.MessagingClient
	accessToken string
	identity    string
	keys        *Keyring
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withAccessToken(ctx, s.accessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	return streamer(withAccessToken(ctx, s.accessToken), desc, cc, method, opts...)
}

// NewGRPCClient connects to endpointURL. identity is the caller's age
// identity; without it messages cannot be decrypted. Extra dial options are
// applied after the defaults.
func NewGRPCClient(endpointURL, accessToken, identity string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, identity: identity}
	c.keys = NewKeyring(identity, c.keyBundle)

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithStreamInterceptor(c.streamAccessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = api.NewMessagingClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		if st.Message() == common.ErrTokenExpired.Error() {
			return ErrTokenExpired
		}
		return ErrUnauthorized
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrForbidden, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalid, st.Message())
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Me(ctx context.Context) (*api.User, error) {
	resp, err := s.client.Me(ctx, &api.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.User, nil
}

// Signup registers the profile and publishes the recipient of the local
// identity so chat keys can be sealed to it.
func (s *GRPCClient) Signup(ctx context.Context, displayName string) (*api.User, error) {
	if s.identity == "" {
		return nil, ErrNoIdentity
	}
	recipient, err := cryptox.RecipientOf(s.identity)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	resp, err := s.client.Signup(ctx, &api.SignupRequest{DisplayName: displayName, PublicKey: recipient})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.User, nil
}

func (s *GRPCClient) ListChats(ctx context.Context) ([]*api.Chat, error) {
	resp, err := s.client.ListChats(ctx, &api.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Chats, nil
}

func (s *GRPCClient) CreateGroup(ctx context.Context, name string, memberIDs []string) (*api.Chat, error) {
	resp, err := s.client.CreateGroup(ctx, &api.CreateGroupRequest{Name: name, MemberIDs: memberIDs})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Chat, nil
}

func (s *GRPCClient) OpenDM(ctx context.Context, userID string) (*api.Chat, error) {
	resp, err := s.client.OpenDM(ctx, &api.OpenDMRequest{UserID: userID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Chat, nil
}

func (s *GRPCClient) Participants(ctx context.Context, chatID string) ([]*api.Participant, error) {
	resp, err := s.client.Participants(ctx, &api.ChatRequest{ChatID: chatID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Participants, nil
}

func (s *GRPCClient) RotateKey(ctx context.Context, chatID string) (int64, error) {
	resp, err := s.client.RotateKey(ctx, &api.ChatRequest{ChatID: chatID})
	if err != nil {
		return 0, s.mapError(err)
	}
	return resp.Epoch, nil
}

func (s *GRPCClient) keyBundle(ctx context.Context, chatID string, epoch int64) ([]byte, error) {
	resp, err := s.client.KeyBundle(ctx, &api.KeyBundleRequest{ChatID: chatID, Epoch: epoch})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Sealed, nil
}

func (s *GRPCClient) Send(ctx context.Context, chatID string, body []byte, mediaURL string, disappearIn time.Duration) (*api.Message, error) {
	now := time.Now().UTC()
	resp, err := s.client.Send(ctx, &api.SendRequest{
		ChatID:       chatID,
		Body:         body,
		MediaURL:     mediaURL,
		DisappearIn:  disappearIn,
		ClientSentAt: &now,
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Message, nil
}

// Decrypt opens the envelope of m with the key of its epoch.
func (s *GRPCClient) Decrypt(ctx context.Context, m *api.Message) (*Plaintext, error) {
	p := &Plaintext{Message: m}
	if len(m.Ciphertext) == 0 {
		return p, nil
	}
	key, err := s.keys.Key(ctx, m.ChatID, m.KeyEpoch)
	if err != nil {
		return nil, err
	}
	body, err := cryptox.Open(key, m.Nonce, m.Ciphertext, keystore.MessageAAD(m.ChatID, m.KeyEpoch))
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", m.ID, err)
	}
	if m.IsCompressed {
		if body, err = compressx.Decompress(body); err != nil {
			return nil, fmt.Errorf("message %s: %w", m.ID, err)
		}
	}
	p.Body = body
	return p, nil
}

// History returns up to limit decrypted messages with a sequence greater
// than after, and whether more are available.
func (s *GRPCClient) History(ctx context.Context, chatID string, after int64, limit int) ([]*Plaintext, bool, error) {
	resp, err := s.client.ListSince(ctx, &api.ListSinceRequest{ChatID: chatID, AfterSequence: after, Limit: limit})
	if err != nil {
		return nil, false, s.mapError(err)
	}
	out := make([]*Plaintext, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		p, err := s.Decrypt(ctx, m)
		if err != nil {
			return nil, false, err
		}
		out = append(out, p)
	}
	return out, resp.HasMore, nil
}

func (s *GRPCClient) MarkRead(ctx context.Context, messageID string) error {
	_, err := s.client.MarkRead(ctx, &api.MessageRequest{MessageID: messageID})
	return s.mapError(err)
}

func (s *GRPCClient) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.client.DeleteMessage(ctx, &api.MessageRequest{MessageID: messageID})
	return s.mapError(err)
}

// Subscribe streams events of chatID with a sequence greater than after to
// fn until ctx ends, the server closes the stream or fn fails. A cancelled
// ctx is not an error.
func (s *GRPCClient) Subscribe(ctx context.Context, chatID string, after int64, fn func(*api.Event) error) error {
	stream, err := s.client.Subscribe(ctx, &api.SubscribeRequest{ChatID: chatID, AfterSequence: after})
	if err != nil {
		return s.mapError(err)
	}
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return s.mapError(err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (s *GRPCClient) UploadMedia(ctx context.Context, chatID string, data []byte, contentType, purpose string) (string, error) {
	resp, err := s.client.UploadMedia(ctx, &api.UploadMediaRequest{ChatID: chatID, Data: data, ContentType: contentType, Purpose: purpose})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.URL, nil
}

func (s *GRPCClient) ListTasks(ctx context.Context) ([]*api.Task, error) {
	resp, err := s.client.ListTasks(ctx, &api.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Tasks, nil
}

func (s *GRPCClient) CreateTask(ctx context.Context, title, description, targetRole string) (*api.Task, error) {
	resp, err := s.client.CreateTask(ctx, &api.CreateTaskRequest{Title: title, Description: description, TargetRole: targetRole})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Task, nil
}

func (s *GRPCClient) UpdateTask(ctx context.Context, taskID, newStatus string) (*api.Task, error) {
	resp, err := s.client.UpdateTask(ctx, &api.UpdateTaskRequest{TaskID: taskID, Status: newStatus})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Task, nil
}

func (s *GRPCClient) WhitelistAdd(ctx context.Context, email string) error {
	_, err := s.client.WhitelistAdd(ctx, &api.WhitelistRequest{Email: email})
	return s.mapError(err)
}

func (s *GRPCClient) WhitelistList(ctx context.Context) ([]*api.WhitelistEntry, error) {
	resp, err := s.client.WhitelistList(ctx, &api.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Entries, nil
}
