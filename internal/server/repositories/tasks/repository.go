package tasks

import (
	"context"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	// ListVisible returns tasks whose target weight does not exceed maxWeight.
	ListVisible(ctx context.Context, maxWeight int) ([]*models.Task, error)
	// UpdateStatus moves a task from one status to another. It fails with
	// common.ErrVersionConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus) error
}
