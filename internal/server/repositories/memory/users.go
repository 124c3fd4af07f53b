package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type UserRepository struct {
	s  *Store
	db dbx.DBTX
}

func (s *Store) Users(db dbx.DBTX) *UserRepository { return &UserRepository{s: s, db: db} }

func (r *UserRepository) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := models.NormalizeEmail(u.Email)
	if _, ok := r.s.users[u.ID]; ok {
		return common.ErrorAlreadyExists
	}
	if _, ok := r.s.emails[email]; ok {
		return common.ErrorAlreadyExists
	}
	u.CreatedAt = r.s.now()
	stored := cloneUser(u)
	stored.Email = email
	r.s.users[u.ID] = stored
	r.s.emails[email] = u.ID
	onRollback(r.db, func() {
		delete(r.s.users, u.ID)
		delete(r.s.emails, email)
	})
	return nil
}

func (r *UserRepository) Get(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	id, ok := r.s.emails[models.NormalizeEmail(email)]
	r.s.mu.RUnlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.Get(ctx, id)
}

func (r *UserRepository) UpdateStatus(_ context.Context, id string, status models.UserStatus, timeoutUntil *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	prev := cloneUser(u)
	u.Status = status
	u.TimeoutUntil = cloneTime(timeoutUntil)
	onRollback(r.db, func() { r.s.users[id] = prev })
	return nil
}

func (r *UserRepository) UpdateRole(_ context.Context, id string, role models.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	prev := cloneUser(u)
	u.Role = role
	u.RoleWeight = role.Weight()
	onRollback(r.db, func() { r.s.users[id] = prev })
	return nil
}
