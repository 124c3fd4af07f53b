package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus, timeoutUntil *time.Time) error
	UpdateRole(ctx context.Context, id string, role models.Role) error
}
