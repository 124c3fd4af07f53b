package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
)

// UserService manages profiles and moderation status. Identity itself comes
// from the external identity provider.
type UserService struct {
	repos repomanager.RepositoryManager
	authz *authz.Engine
	log   logging.Logger
}

func NewUserService(repos repomanager.RepositoryManager, az *authz.Engine, log logging.Logger) *UserService {
	return &UserService{repos: repos, authz: az, log: log.With("module", "users")}
}

type SignupRequest struct {
	DisplayName string
	PfpURL      string
	// PublicKey is an age X25519 recipient; optional at signup.
	PublicKey string
}

// CompleteSignup creates the profile of a whitelisted identity with the
// default role. Repeating it for an existing profile returns that profile.
func (s *UserService) CompleteSignup(ctx context.Context, id models.Identity, req SignupRequest) (*models.User, error) {
	email := models.NormalizeEmail(id.Email)
	if id.UserID == "" || !models.ValidEmail(email) {
		return nil, common.ErrorUnauthorized
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, common.Validation("display name is required")
	}
	if req.PublicKey != "" {
		if err := cryptox.ValidateRecipient(req.PublicKey); err != nil {
			return nil, common.Validation("invalid public key")
		}
	}

	ok, err := s.repos.Whitelist(s.repos.Conn()).Exists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("whitelist lookup: %w", err)
	}
	if !ok {
		return nil, common.ErrNotWhitelisted
	}

	if existing, err := s.repos.Users(s.repos.Conn()).Get(ctx, id.UserID); err == nil {
		return existing, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	u := &models.User{
		ID:          id.UserID,
		Email:       email,
		DisplayName: name,
		PfpURL:      req.PfpURL,
		Role:        models.DefaultRole,
		RoleWeight:  models.DefaultRole.Weight(),
		Status:      models.UserActive,
		PublicKey:   req.PublicKey,
	}
	if err := s.repos.Users(s.repos.Conn()).Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info(ctx, "signup completed", "user_id", u.ID)
	return u, nil
}

// Get returns another user's profile to any unrestricted user.
func (s *UserService) Get(ctx context.Context, actorID, userID string) (*models.User, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != userID && actor.Restricted(s.authz.Now()) {
		return nil, s.authz.Check(actor, authz.ActionReadChat, authz.Target{})
	}
	return loadUser(ctx, s.repos, userID)
}

// Status returns the caller's own profile. It stays readable while banned
// or timed out.
func (s *UserService) Status(ctx context.Context, actorID string) (*models.User, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionReadOwnStatus, authz.Target{User: actor}); err != nil {
		return nil, err
	}
	return actor, nil
}

func (s *UserService) moderate(ctx context.Context, actorID, targetID string, action authz.Action, apply func(target *models.User) error) (*models.User, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	target, err := loadUser(ctx, s.repos, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, action, authz.Target{User: target}); err != nil {
		s.log.Warn(ctx, "moderation denied", "actor_id", actor.ID, "target_id", target.ID, "action", action, "error", err)
		return nil, err
	}
	if err := apply(target); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "moderation applied", "actor_id", actor.ID, "target_id", target.ID, "action", action)
	return loadUser(ctx, s.repos, targetID)
}

func (s *UserService) Ban(ctx context.Context, actorID, targetID string) (*models.User, error) {
	return s.moderate(ctx, actorID, targetID, authz.ActionBan, func(t *models.User) error {
		return s.repos.Users(s.repos.Conn()).UpdateStatus(ctx, t.ID, models.UserBanned, nil)
	})
}

// Timeout restricts the target until the given instant, after which the
// target is implicitly reinstated.
func (s *UserService) Timeout(ctx context.Context, actorID, targetID string, until time.Time) (*models.User, error) {
	if !until.After(s.authz.Now()) {
		return nil, common.Validation("timeout must end in the future")
	}
	return s.moderate(ctx, actorID, targetID, authz.ActionTimeout, func(t *models.User) error {
		u := until.UTC()
		return s.repos.Users(s.repos.Conn()).UpdateStatus(ctx, t.ID, models.UserTimeout, &u)
	})
}

func (s *UserService) Reinstate(ctx context.Context, actorID, targetID string) (*models.User, error) {
	return s.moderate(ctx, actorID, targetID, authz.ActionReinstate, func(t *models.User) error {
		return s.repos.Users(s.repos.Conn()).UpdateStatus(ctx, t.ID, models.UserActive, nil)
	})
}

func (s *UserService) SetRole(ctx context.Context, actorID, targetID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, common.Validation("unknown role %q", role)
	}
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	target, err := loadUser(ctx, s.repos, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionSetRole, authz.Target{User: target, NewRole: role}); err != nil {
		return nil, err
	}
	if err := s.repos.Users(s.repos.Conn()).UpdateRole(ctx, targetID, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.log.Info(ctx, "role changed", "actor_id", actor.ID, "target_id", targetID, "role", role)
	return loadUser(ctx, s.repos, targetID)
}
