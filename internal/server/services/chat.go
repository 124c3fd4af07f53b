package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/keystore"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ChatService manages chats and membership. Every membership change rotates
// the chat key so departed members cannot read new messages and new members
// cannot read old ones.
type ChatService struct {
	repos repomanager.RepositoryManager
	authz *authz.Engine
	keys  *keystore.Engine
	log   logging.Logger
}

func NewChatService(repos repomanager.RepositoryManager, az *authz.Engine, keys *keystore.Engine, log logging.Logger) *ChatService {
	return &ChatService{repos: repos, authz: az, keys: keys, log: log.With("module", "chats")}
}

type GroupRequest struct {
	Name        string
	Description string
	PfpURL      string
	MemberIDs   []string
}

// CreateGroup creates a group owned by the actor with the given members and
// its first key epoch, all in one transaction.
func (s *ChatService) CreateGroup(ctx context.Context, actorID string, req GroupRequest) (*models.Chat, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionCreateGroup, authz.Target{}); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, common.Validation("group name is required")
	}

	chat := &models.Chat{
		ID:          uuid.NewString(),
		Type:        models.ChatGroup,
		Name:        name,
		Description: req.Description,
		PfpURL:      req.PfpURL,
	}
	err = s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Chats(tx)
		if err := repo.Create(ctx, chat, ""); err != nil {
			return err
		}
		if err := repo.AddParticipant(ctx, &models.Participant{ChatID: chat.ID, UserID: actor.ID, GroupRole: models.GroupOwner}); err != nil {
			return err
		}
		seen := map[string]bool{actor.ID: true}
		for _, id := range req.MemberIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := repo.AddParticipant(ctx, &models.Participant{ChatID: chat.ID, UserID: id, GroupRole: models.GroupMember}); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.Validation("unknown member %s", id)
				}
				return err
			}
		}
		return s.keys.Bootstrap(ctx, tx, chat.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	chat.CurrentEpoch = 1
	s.log.Info(ctx, "group created", "chat_id", chat.ID, "owner_id", actor.ID, "members", len(req.MemberIDs))
	return chat, nil
}

// OpenDM returns the direct chat between the actor and otherID, creating it
// on first use.
func (s *ChatService) OpenDM(ctx context.Context, actorID, otherID string) (*models.Chat, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	other, err := loadUser(ctx, s.repos, otherID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionOpenDM, authz.Target{User: other}); err != nil {
		return nil, err
	}

	key := models.DMKey(actor.ID, other.ID)
	if chat, err := s.repos.Chats(s.repos.Conn()).GetDM(ctx, key); err == nil {
		return chat, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	chat := &models.Chat{ID: uuid.NewString(), Type: models.ChatDM}
	err = s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Chats(tx)
		if err := repo.Create(ctx, chat, key); err != nil {
			return err
		}
		for _, id := range []string{actor.ID, other.ID} {
			if err := repo.AddParticipant(ctx, &models.Participant{ChatID: chat.ID, UserID: id, GroupRole: models.GroupMember}); err != nil {
				return err
			}
		}
		return s.keys.Bootstrap(ctx, tx, chat.ID)
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		// Lost a race with the other side opening the same DM.
		return s.repos.Chats(s.repos.Conn()).GetDM(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open dm: %w", err)
	}
	chat.CurrentEpoch = 1
	return chat, nil
}

// Get returns a chat the actor participates in.
func (s *ChatService) Get(ctx context.Context, actorID, chatID string) (*models.Chat, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	t, err := chatTarget(ctx, s.repos, chatID, actor.ID, "")
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionReadChat, t); err != nil {
		return nil, err
	}
	return t.Chat, nil
}

func (s *ChatService) List(ctx context.Context, actorID string) ([]*models.Chat, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Restricted(s.authz.Now()) {
		return nil, s.authz.Check(actor, authz.ActionReadChat, authz.Target{})
	}
	return s.repos.Chats(s.repos.Conn()).ListForUser(ctx, actor.ID)
}

func (s *ChatService) Participants(ctx context.Context, actorID, chatID string) ([]*models.Participant, error) {
	if _, err := s.Get(ctx, actorID, chatID); err != nil {
		return nil, err
	}
	return s.repos.Chats(s.repos.Conn()).ListParticipants(ctx, chatID)
}

// membershipChange authorizes action, then applies it and rotates the chat
// key in a single transaction. next is the epoch the rotation creates.
func (s *ChatService) membershipChange(ctx context.Context, actorID, chatID, userID string, action authz.Action, apply func(ctx context.Context, tx dbx.DBTX, t authz.Target, next int64) error) error {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return err
	}
	t, err := chatTarget(ctx, s.repos, chatID, actor.ID, userID)
	if err != nil {
		return err
	}
	if err := s.authz.Check(actor, action, t); err != nil {
		s.log.Warn(ctx, "membership change denied", "actor_id", actor.ID, "chat_id", chatID, "action", action, "error", err)
		return err
	}
	epoch, err := s.keys.RotateWith(ctx, chatID, keystore.ReasonMembership, func(ctx context.Context, tx dbx.DBTX, next int64) error {
		return apply(ctx, tx, t, next)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	s.log.Info(ctx, "membership changed", "actor_id", actor.ID, "chat_id", chatID, "user_id", userID, "action", action, "epoch", epoch)
	return nil
}

// AddParticipant adds userID as a member. The newcomer can unwrap keys from
// the epoch created by this change onwards.
func (s *ChatService) AddParticipant(ctx context.Context, actorID, chatID, userID string) error {
	return s.membershipChange(ctx, actorID, chatID, userID, authz.ActionAddParticipant, func(ctx context.Context, tx dbx.DBTX, t authz.Target, next int64) error {
		if t.TargetMembership != nil {
			return common.ErrorAlreadyExists
		}
		if t.User == nil {
			return fmt.Errorf("load user %s: %w", userID, common.ErrorNotFound)
		}
		return s.repos.Chats(tx).AddParticipant(ctx, &models.Participant{ChatID: chatID, UserID: userID, GroupRole: models.GroupMember, FirstEpoch: next})
	})
}

func (s *ChatService) Kick(ctx context.Context, actorID, chatID, userID string) error {
	return s.membershipChange(ctx, actorID, chatID, userID, authz.ActionKick, func(ctx context.Context, tx dbx.DBTX, _ authz.Target, _ int64) error {
		return s.repos.Chats(tx).RemoveParticipant(ctx, chatID, userID)
	})
}

// Leave removes the actor from a group. The owner cannot leave.
func (s *ChatService) Leave(ctx context.Context, actorID, chatID string) error {
	return s.membershipChange(ctx, actorID, chatID, "", authz.ActionLeave, func(ctx context.Context, tx dbx.DBTX, t authz.Target, _ int64) error {
		if t.Chat.Type == models.ChatDM {
			return common.Validation("direct chats cannot be left")
		}
		if t.ActorMembership.GroupRole == models.GroupOwner {
			return common.Validation("the owner cannot leave the group")
		}
		return s.repos.Chats(tx).RemoveParticipant(ctx, chatID, actorID)
	})
}

func (s *ChatService) setGroupRole(ctx context.Context, actorID, chatID, userID string, action authz.Action, role models.GroupRole) error {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return err
	}
	t, err := chatTarget(ctx, s.repos, chatID, actor.ID, userID)
	if err != nil {
		return err
	}
	if err := s.authz.Check(actor, action, t); err != nil {
		return err
	}
	if err := s.repos.Chats(s.repos.Conn()).UpdateGroupRole(ctx, chatID, userID, role); err != nil {
		return fmt.Errorf("update group role: %w", err)
	}
	s.log.Info(ctx, "group role changed", "actor_id", actor.ID, "chat_id", chatID, "user_id", userID, "role", role)
	return nil
}

func (s *ChatService) Promote(ctx context.Context, actorID, chatID, userID string) error {
	return s.setGroupRole(ctx, actorID, chatID, userID, authz.ActionPromote, models.GroupAdmin)
}

func (s *ChatService) Demote(ctx context.Context, actorID, chatID, userID string) error {
	return s.setGroupRole(ctx, actorID, chatID, userID, authz.ActionDemote, models.GroupMember)
}

// RotateKey starts a new key epoch on request of a moderator.
func (s *ChatService) RotateKey(ctx context.Context, actorID, chatID string) (int64, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return 0, err
	}
	t, err := chatTarget(ctx, s.repos, chatID, actor.ID, "")
	if err != nil {
		return 0, err
	}
	if err := s.authz.Check(actor, authz.ActionRotateKey, t); err != nil {
		return 0, err
	}
	return s.keys.Rotate(ctx, chatID, keystore.ReasonManual)
}

// KeyBundle seals the key of epoch to every participant that has registered
// a public key and joined no later than epoch. Callers must have been a
// participant when epoch was created; epoch 0 means the current one.
func (s *ChatService) KeyBundle(ctx context.Context, actorID, chatID string, epoch int64) ([]byte, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	t, err := chatTarget(ctx, s.repos, chatID, actor.ID, "")
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionReadChat, t); err != nil {
		return nil, err
	}
	if epoch == 0 {
		if epoch, err = s.keys.CurrentEpoch(ctx, chatID); err != nil {
			return nil, err
		}
	}
	t.Epoch = epoch
	if err := s.authz.Check(actor, authz.ActionFetchKey, t); err != nil {
		s.log.Warn(ctx, "key bundle denied", "actor_id", actor.ID, "chat_id", chatID, "epoch", epoch, "error", err)
		return nil, err
	}
	if actor.PublicKey == "" {
		return nil, common.Validation("register a public key first")
	}

	parts, err := s.repos.Chats(s.repos.Conn()).ListParticipants(ctx, chatID)
	if err != nil {
		return nil, err
	}
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.EffectiveFirstEpoch() > epoch {
			continue
		}
		u, err := loadUser(ctx, s.repos, p.UserID)
		if err != nil {
			return nil, err
		}
		if u.PublicKey != "" {
			recipients = append(recipients, u.PublicKey)
		}
	}
	return s.keys.KeyBundle(ctx, chatID, epoch, recipients)
}
