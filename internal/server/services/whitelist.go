package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

type WhitelistService struct {
	repos repomanager.RepositoryManager
	authz *authz.Engine
	log   logging.Logger
}

func NewWhitelistService(repos repomanager.RepositoryManager, az *authz.Engine, log logging.Logger) *WhitelistService {
	return &WhitelistService{repos: repos, authz: az, log: log.With("module", "whitelist")}
}

// IsWhitelisted matches case-insensitively after trimming. It needs no caller.
func (s *WhitelistService) IsWhitelisted(ctx context.Context, email string) (bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	return s.repos.Whitelist(s.repos.Conn()).Exists(ctx, email)
}

func (s *WhitelistService) Add(ctx context.Context, actorID, email string) (*models.WhitelistEntry, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionWhitelistAdd, authz.Target{}); err != nil {
		return nil, err
	}
	email = models.NormalizeEmail(email)
	if !models.ValidEmail(email) {
		return nil, common.Validation("invalid email %q", email)
	}
	entry := &models.WhitelistEntry{ID: uuid.NewString(), Email: email, AddedBy: actor.ID}
	if err := s.repos.Whitelist(s.repos.Conn()).Add(ctx, entry); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("add whitelist entry: %w", err)
	}
	s.log.Info(ctx, "whitelist entry added", "actor_id", actor.ID, "entry_id", entry.ID)
	return entry, nil
}

func (s *WhitelistService) Remove(ctx context.Context, actorID, email string) error {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return err
	}
	if err := s.authz.Check(actor, authz.ActionWhitelistRemove, authz.Target{}); err != nil {
		return err
	}
	if err := s.repos.Whitelist(s.repos.Conn()).Remove(ctx, models.NormalizeEmail(email)); err != nil {
		return err
	}
	s.log.Info(ctx, "whitelist entry removed", "actor_id", actor.ID)
	return nil
}

func (s *WhitelistService) List(ctx context.Context, actorID string) ([]*models.WhitelistEntry, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionWhitelistView, authz.Target{}); err != nil {
		return nil, err
	}
	return s.repos.Whitelist(s.repos.Conn()).List(ctx)
}
