// Package services contains server-side business logic. Each service loads
// the acting user, asks the authorization engine and only then touches the
// core components or repositories.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
)

// loadActor resolves the authenticated caller. Callers who never completed
// signup are unauthorized.
func loadActor(ctx context.Context, repos repomanager.RepositoryManager, actorID string) (*models.User, error) {
	if actorID == "" {
		return nil, common.ErrorUnauthorized
	}
	u, err := repos.Users(repos.Conn()).Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("load actor: %w", err)
	}
	return u, nil
}

func loadUser(ctx context.Context, repos repomanager.RepositoryManager, id string) (*models.User, error) {
	u, err := repos.Users(repos.Conn()).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

// chatTarget builds an authorization target for chatID with the memberships
// of the actor and, if targetUserID is set, the target user and their
// membership. An unknown target user leaves Target.User nil.
func chatTarget(ctx context.Context, repos repomanager.RepositoryManager, chatID, actorID, targetUserID string) (authz.Target, error) {
	conn := repos.Conn()
	chat, err := repos.Chats(conn).Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return authz.Target{}, common.ErrChatNotFound
		}
		return authz.Target{}, fmt.Errorf("load chat: %w", err)
	}
	t := authz.Target{Chat: chat}
	if t.ActorMembership, err = membership(ctx, repos, chatID, actorID); err != nil {
		return authz.Target{}, err
	}
	if targetUserID != "" {
		if t.TargetMembership, err = membership(ctx, repos, chatID, targetUserID); err != nil {
			return authz.Target{}, err
		}
		u, err := repos.Users(conn).Get(ctx, targetUserID)
		switch {
		case err == nil:
			t.User = u
		case !errors.Is(err, common.ErrorNotFound):
			return authz.Target{}, fmt.Errorf("load target user: %w", err)
		}
	}
	return t, nil
}

// membership returns nil without error when userID is not in the chat.
func membership(ctx context.Context, repos repomanager.RepositoryManager, chatID, userID string) (*models.Participant, error) {
	p, err := repos.Chats(repos.Conn()).GetParticipant(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return p, nil
}
