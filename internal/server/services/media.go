package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/blob"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
)

type MediaService struct {
	repos repomanager.RepositoryManager
	authz *authz.Engine
	blobs blob.Store
	log   logging.Logger
}

func NewMediaService(repos repomanager.RepositoryManager, az *authz.Engine, blobs blob.Store, log logging.Logger) *MediaService {
	return &MediaService{repos: repos, authz: az, blobs: blobs, log: log.With("module", "media")}
}

// Upload stores an image and returns its URL. With a chatID the upload is
// accounted to that chat's storage and requires membership.
func (s *MediaService) Upload(ctx context.Context, actorID, chatID string, data []byte, contentType string, purpose blob.Purpose) (string, error) {
	if err := blob.Validate(len(data), contentType, purpose); err != nil {
		return "", err
	}
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return "", err
	}
	var t authz.Target
	if chatID != "" {
		if t, err = chatTarget(ctx, s.repos, chatID, actor.ID, ""); err != nil {
			return "", err
		}
	}
	if err := s.authz.Check(actor, authz.ActionUploadMedia, t); err != nil {
		return "", err
	}

	url, err := s.blobs.Put(ctx, data, contentType, purpose)
	if err != nil {
		return "", fmt.Errorf("store media: %w", err)
	}
	if chatID != "" {
		total, err := s.repos.Chats(s.repos.Conn()).AddStorageUsed(ctx, chatID, int64(len(data)))
		if err != nil {
			return "", fmt.Errorf("account storage: %w", err)
		}
		s.log.Debug(ctx, "chat storage updated", "chat_id", chatID, "bytes", total)
	}
	return url, nil
}
