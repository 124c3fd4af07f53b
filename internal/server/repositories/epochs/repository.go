package epochs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, e *models.KeyEpoch) error
	Get(ctx context.Context, chatID string, epoch int64) (*models.KeyEpoch, error)
	ListByChat(ctx context.Context, chatID string) ([]*models.KeyEpoch, error)
	Retire(ctx context.Context, chatID string, epoch int64, at time.Time) error
	IncrementUsage(ctx context.Context, chatID string, epoch int64) (int64, error)
}
