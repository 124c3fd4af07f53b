package chats

import (
	"context"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type Repository interface {
	// Create stores a chat. dmKey is empty for groups; a second DM for the
	// same pair fails with common.ErrorAlreadyExists.
	Create(ctx context.Context, chat *models.Chat, dmKey string) error
	Get(ctx context.Context, id string) (*models.Chat, error)
	GetDM(ctx context.Context, dmKey string) (*models.Chat, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Chat, error)

	// IncrementSequence reserves the next sequence position of the chat.
	IncrementSequence(ctx context.Context, chatID string) (int64, error)
	SetCurrentEpoch(ctx context.Context, chatID string, epoch int64) error
	AddStorageUsed(ctx context.Context, chatID string, delta int64) (int64, error)

	AddParticipant(ctx context.Context, p *models.Participant) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	GetParticipant(ctx context.Context, chatID, userID string) (*models.Participant, error)
	ListParticipants(ctx context.Context, chatID string) ([]*models.Participant, error)
	UpdateGroupRole(ctx context.Context, chatID, userID string, role models.GroupRole) error
}
