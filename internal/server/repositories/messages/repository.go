package messages

import (
	"context"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	// ListAfter returns up to limit messages with sequence > after, ascending.
	ListAfter(ctx context.Context, chatID string, after int64, limit int) ([]*models.Message, error)
	// Delete hard-deletes the message and its receipts. It reports whether a
	// row was removed; deleting a missing message is not an error.
	Delete(ctx context.Context, id string) (bool, error)
	ListPendingExpiry(ctx context.Context) ([]models.PendingExpiry, error)
}
