package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type TaskRepository struct {
	s  *Store
	db dbx.DBTX
}

func (s *Store) Tasks(db dbx.DBTX) *TaskRepository { return &TaskRepository{s: s, db: db} }

func (r *TaskRepository) Create(_ context.Context, t *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; ok {
		return common.ErrorAlreadyExists
	}
	now := r.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	c := *t
	r.s.tasks[t.ID] = &c
	onRollback(r.db, func() { delete(r.s.tasks, c.ID) })
	return nil
}

func (r *TaskRepository) Get(_ context.Context, id string) (*models.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (r *TaskRepository) ListVisible(_ context.Context, maxWeight int) ([]*models.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Task
	for _, t := range r.s.tasks {
		if t.TargetRoleWeight <= maxWeight {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *TaskRepository) UpdateStatus(_ context.Context, id string, from, to models.TaskStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.Status != from {
		return common.ErrVersionConflict
	}
	prev := *t
	t.Status = to
	t.UpdatedAt = r.s.now()
	onRollback(r.db, func() { *t = prev })
	return nil
}
