package whitelist

import (
	"context"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

// Repository stores whitelist entries. Emails are expected normalized.
type Repository interface {
	Add(ctx context.Context, entry *models.WhitelistEntry) error
	Remove(ctx context.Context, email string) error
	Exists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]*models.WhitelistEntry, error)
}
