package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/api"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/server/blob"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/services"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{Status: "OK"}, nil
}

// ---- users ----

func (s *GRPCServer) Signup(ctx context.Context, req *api.SignupRequest) (*api.UserResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.svc.Users.CompleteSignup(ctx, id, services.SignupRequest{
		DisplayName: req.DisplayName,
		PfpURL:      req.PfpURL,
		PublicKey:   req.PublicKey,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "Signup", err)
	}
	return &api.UserResponse{User: toUser(u)}, nil
}

func (s *GRPCServer) Me(ctx context.Context, _ *api.Empty) (*api.UserResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.svc.Users.Status(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "Me", err)
	}
	return &api.UserResponse{User: toUser(u)}, nil
}

func (s *GRPCServer) GetUser(ctx context.Context, req *api.GetUserRequest) (*api.UserResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.svc.Users.Get(ctx, id.UserID, req.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "GetUser", err)
	}
	return &api.UserResponse{User: toUser(u)}, nil
}

func (s *GRPCServer) moderate(ctx context.Context, method string, apply func(actorID string) (*models.User, error)) (*api.UserResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	u, err := apply(id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, method, err)
	}
	return &api.UserResponse{User: toUser(u)}, nil
}

func (s *GRPCServer) Ban(ctx context.Context, req *api.ModerateRequest) (*api.UserResponse, error) {
	return s.moderate(ctx, "Ban", func(actorID string) (*models.User, error) {
		return s.svc.Users.Ban(ctx, actorID, req.UserID)
	})
}

func (s *GRPCServer) Timeout(ctx context.Context, req *api.ModerateRequest) (*api.UserResponse, error) {
	return s.moderate(ctx, "Timeout", func(actorID string) (*models.User, error) {
		if req.Until == nil {
			return nil, common.Validation("timeout end is required")
		}
		return s.svc.Users.Timeout(ctx, actorID, req.UserID, *req.Until)
	})
}

func (s *GRPCServer) Reinstate(ctx context.Context, req *api.ModerateRequest) (*api.UserResponse, error) {
	return s.moderate(ctx, "Reinstate", func(actorID string) (*models.User, error) {
		return s.svc.Users.Reinstate(ctx, actorID, req.UserID)
	})
}

func (s *GRPCServer) SetRole(ctx context.Context, req *api.ModerateRequest) (*api.UserResponse, error) {
	return s.moderate(ctx, "SetRole", func(actorID string) (*models.User, error) {
		role, err := models.ParseRole(req.Role)
		if err != nil {
			return nil, common.Validation("%v", err)
		}
		return s.svc.Users.SetRole(ctx, actorID, req.UserID, role)
	})
}

// ---- whitelist ----

func (s *GRPCServer) WhitelistCheck(ctx context.Context, req *api.WhitelistRequest) (*api.WhitelistCheckResponse, error) {
	ok, err := s.svc.Whitelist.IsWhitelisted(ctx, req.Email)
	if err != nil {
		return nil, s.toStatus(ctx, "WhitelistCheck", err)
	}
	return &api.WhitelistCheckResponse{Whitelisted: ok}, nil
}

func (s *GRPCServer) WhitelistAdd(ctx context.Context, req *api.WhitelistRequest) (*api.WhitelistEntryResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.svc.Whitelist.Add(ctx, id.UserID, req.Email)
	if err != nil {
		return nil, s.toStatus(ctx, "WhitelistAdd", err)
	}
	return &api.WhitelistEntryResponse{Entry: toWhitelistEntry(e)}, nil
}

func (s *GRPCServer) WhitelistRemove(ctx context.Context, req *api.WhitelistRequest) (*api.Empty, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Whitelist.Remove(ctx, id.UserID, req.Email); err != nil {
		return nil, s.toStatus(ctx, "WhitelistRemove", err)
	}
	return &api.Empty{}, nil
}

func (s *GRPCServer) WhitelistList(ctx context.Context, _ *api.Empty) (*api.WhitelistListResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.svc.Whitelist.List(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "WhitelistList", err)
	}
	return &api.WhitelistListResponse{Entries: mapSlice(list, toWhitelistEntry)}, nil
}

// ---- chats ----

func (s *GRPCServer) CreateGroup(ctx context.Context, req *api.CreateGroupRequest) (*api.ChatResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Chats.CreateGroup(ctx, id.UserID, services.GroupRequest{
		Name:        req.Name,
		Description: req.Description,
		PfpURL:      req.PfpURL,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "CreateGroup", err)
	}
	return &api.ChatResponse{Chat: toChat(c)}, nil
}

func (s *GRPCServer) OpenDM(ctx context.Context, req *api.OpenDMRequest) (*api.ChatResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Chats.OpenDM(ctx, id.UserID, req.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "OpenDM", err)
	}
	return &api.ChatResponse{Chat: toChat(c)}, nil
}

func (s *GRPCServer) GetChat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Chats.Get(ctx, id.UserID, req.ChatID)
	if err != nil {
		return nil, s.toStatus(ctx, "GetChat", err)
	}
	return &api.ChatResponse{Chat: toChat(c)}, nil
}

func (s *GRPCServer) ListChats(ctx context.Context, _ *api.Empty) (*api.ListChatsResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	chats, err := s.svc.Chats.List(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "ListChats", err)
	}
	return &api.ListChatsResponse{Chats: mapSlice(chats, toChat)}, nil
}

func (s *GRPCServer) Participants(ctx context.Context, req *api.ChatRequest) (*api.ParticipantsResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := s.svc.Chats.Participants(ctx, id.UserID, req.ChatID)
	if err != nil {
		return nil, s.toStatus(ctx, "Participants", err)
	}
	return &api.ParticipantsResponse{Participants: mapSlice(ps, toParticipant)}, nil
}

func (s *GRPCServer) membership(ctx context.Context, method string, req *api.MembershipRequest, apply func(ctx context.Context, actorID, chatID, userID string) error) (*api.Empty, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := apply(ctx, id.UserID, req.ChatID, req.UserID); err != nil {
		return nil, s.toStatus(ctx, method, err)
	}
	return &api.Empty{}, nil
}

func (s *GRPCServer) AddParticipant(ctx context.Context, req *api.MembershipRequest) (*api.Empty, error) {
	return s.membership(ctx, "AddParticipant", req, s.svc.Chats.AddParticipant)
}

func (s *GRPCServer) Kick(ctx context.Context, req *api.MembershipRequest) (*api.Empty, error) {
	return s.membership(ctx, "Kick", req, s.svc.Chats.Kick)
}

func (s *GRPCServer) Promote(ctx context.Context, req *api.MembershipRequest) (*api.Empty, error) {
	return s.membership(ctx, "Promote", req, s.svc.Chats.Promote)
}

func (s *GRPCServer) Demote(ctx context.Context, req *api.MembershipRequest) (*api.Empty, error) {
	return s.membership(ctx, "Demote", req, s.svc.Chats.Demote)
}

func (s *GRPCServer) Leave(ctx context.Context, req *api.ChatRequest) (*api.Empty, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Chats.Leave(ctx, id.UserID, req.ChatID); err != nil {
		return nil, s.toStatus(ctx, "Leave", err)
	}
	return &api.Empty{}, nil
}

func (s *GRPCServer) RotateKey(ctx context.Context, req *api.ChatRequest) (*api.RotateKeyResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	epoch, err := s.svc.Chats.RotateKey(ctx, id.UserID, req.ChatID)
	if err != nil {
		return nil, s.toStatus(ctx, "RotateKey", err)
	}
	return &api.RotateKeyResponse{Epoch: epoch}, nil
}

func (s *GRPCServer) KeyBundle(ctx context.Context, req *api.KeyBundleRequest) (*api.KeyBundleResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	sealed, err := s.svc.Chats.KeyBundle(ctx, id.UserID, req.ChatID, req.Epoch)
	if err != nil {
		return nil, s.toStatus(ctx, "KeyBundle", err)
	}
	return &api.KeyBundleResponse{Sealed: sealed}, nil
}

// ---- messages ----

func (s *GRPCServer) Send(ctx context.Context, req *api.SendRequest) (*api.MessageResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.svc.Messages.Send(ctx, id.UserID, req.ChatID, req.Body, services.SendOptions{
		MediaURL:       req.MediaURL,
		DisappearAfter: req.DisappearIn,
		ClientSentAt:   req.ClientSentAt,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "Send", err)
	}
	return &api.MessageResponse{Message: toMessage(m)}, nil
}

func (s *GRPCServer) receipt(ctx context.Context, method string, req *api.MessageRequest, apply func(ctx context.Context, actorID, messageID string) error) (*api.Empty, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := apply(ctx, id.UserID, req.MessageID); err != nil {
		return nil, s.toStatus(ctx, method, err)
	}
	return &api.Empty{}, nil
}

func (s *GRPCServer) MarkDelivered(ctx context.Context, req *api.MessageRequest) (*api.Empty, error) {
	return s.receipt(ctx, "MarkDelivered", req, s.svc.Messages.MarkDelivered)
}

func (s *GRPCServer) MarkRead(ctx context.Context, req *api.MessageRequest) (*api.Empty, error) {
	return s.receipt(ctx, "MarkRead", req, s.svc.Messages.MarkRead)
}

func (s *GRPCServer) DeleteMessage(ctx context.Context, req *api.MessageRequest) (*api.Empty, error) {
	return s.receipt(ctx, "DeleteMessage", req, s.svc.Messages.Delete)
}

func (s *GRPCServer) Receipts(ctx context.Context, req *api.MessageRequest) (*api.ReceiptsResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	rcs, err := s.svc.Messages.Receipts(ctx, id.UserID, req.MessageID)
	if err != nil {
		return nil, s.toStatus(ctx, "Receipts", err)
	}
	return &api.ReceiptsResponse{Receipts: mapSlice(rcs, toReceipt)}, nil
}

func (s *GRPCServer) ListSince(ctx context.Context, req *api.ListSinceRequest) (*api.ListSinceResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	seq, err := s.svc.Messages.History(ctx, id.UserID, req.ChatID, req.AfterSequence)
	if err != nil {
		return nil, s.toStatus(ctx, "ListSince", err)
	}

	resp := &api.ListSinceResponse{Messages: make([]*api.Message, 0, limit)}
	for m, err := range seq {
		if err != nil {
			return nil, s.toStatus(ctx, "ListSince", err)
		}
		if len(resp.Messages) == limit {
			resp.HasMore = true
			break
		}
		resp.Messages = append(resp.Messages, toMessage(m))
	}
	return resp, nil
}

// ---- tasks ----

func (s *GRPCServer) CreateTask(ctx context.Context, req *api.CreateTaskRequest) (*api.TaskResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.svc.Tasks.Create(ctx, id.UserID, services.TaskRequest{
		Title:       req.Title,
		Description: req.Description,
		TargetRole:  models.Role(req.TargetRole),
	})
	if err != nil {
		return nil, s.toStatus(ctx, "CreateTask", err)
	}
	return &api.TaskResponse{Task: toTask(t)}, nil
}

func (s *GRPCServer) ListTasks(ctx context.Context, _ *api.Empty) (*api.ListTasksResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.svc.Tasks.List(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "ListTasks", err)
	}
	return &api.ListTasksResponse{Tasks: mapSlice(tasks, toTask)}, nil
}

func (s *GRPCServer) UpdateTask(ctx context.Context, req *api.UpdateTaskRequest) (*api.TaskResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	to := models.TaskStatus(req.Status)
	if !to.Valid() {
		return nil, s.toStatus(ctx, "UpdateTask", common.Validation("unknown task status %q", req.Status))
	}
	t, err := s.svc.Tasks.Transition(ctx, id.UserID, req.TaskID, to)
	if err != nil {
		return nil, s.toStatus(ctx, "UpdateTask", err)
	}
	return &api.TaskResponse{Task: toTask(t)}, nil
}

// ---- media ----

func (s *GRPCServer) UploadMedia(ctx context.Context, req *api.UploadMediaRequest) (*api.UploadMediaResponse, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	url, err := s.svc.Media.Upload(ctx, id.UserID, req.ChatID, req.Data, req.ContentType, blob.Purpose(req.Purpose))
	if err != nil {
		return nil, s.toStatus(ctx, "UploadMedia", err)
	}
	s.logger.Info(ctx, "media uploaded", "user_id", id.UserID, "bytes", len(req.Data), "took", time.Since(start))
	return &api.UploadMediaResponse{URL: url}, nil
}
