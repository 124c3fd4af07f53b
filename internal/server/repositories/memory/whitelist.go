package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type WhitelistRepository struct {
	s  *Store
	db dbx.DBTX
}

func (s *Store) Whitelist(db dbx.DBTX) *WhitelistRepository {
	return &WhitelistRepository{s: s, db: db}
}

func (r *WhitelistRepository) Add(_ context.Context, e *models.WhitelistEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.whitelist[e.Email]; ok {
		return common.ErrorAlreadyExists
	}
	e.CreatedAt = r.s.now()
	c := *e
	r.s.whitelist[e.Email] = &c
	onRollback(r.db, func() { delete(r.s.whitelist, c.Email) })
	return nil
}

func (r *WhitelistRepository) Remove(_ context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.whitelist[email]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.s.whitelist, email)
	onRollback(r.db, func() { r.s.whitelist[email] = prev })
	return nil
}

func (r *WhitelistRepository) Exists(_ context.Context, email string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.whitelist[email]
	return ok, nil
}

func (r *WhitelistRepository) List(_ context.Context) ([]*models.WhitelistEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.WhitelistEntry, 0, len(r.s.whitelist))
	for _, e := range r.s.whitelist {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
