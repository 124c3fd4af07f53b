package receipts

import (
	"context"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type Repository interface {
	// Advance moves the receipt forward to r.State. It reports false when the
	// stored state is already at or beyond it.
	Advance(ctx context.Context, r *models.Receipt) (bool, error)
	Get(ctx context.Context, messageID, userID string) (*models.Receipt, error)
	ListByMessage(ctx context.Context, messageID string) ([]*models.Receipt, error)
}
