package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type EpochRepository struct {
	s  *Store
	db dbx.DBTX
}

func (s *Store) Epochs(db dbx.DBTX) *EpochRepository { return &EpochRepository{s: s, db: db} }

func (r *EpochRepository) Create(_ context.Context, e *models.KeyEpoch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byEpoch := r.s.epochs[e.ChatID]
	if byEpoch == nil {
		byEpoch = make(map[int64]*models.KeyEpoch)
		r.s.epochs[e.ChatID] = byEpoch
	}
	if _, ok := byEpoch[e.Epoch]; ok {
		return common.ErrorAlreadyExists
	}
	e.CreatedAt = r.s.now()
	byEpoch[e.Epoch] = cloneEpoch(e)
	n := e.Epoch
	onRollback(r.db, func() { delete(byEpoch, n) })
	return nil
}

func (r *EpochRepository) Get(_ context.Context, chatID string, epoch int64) (*models.KeyEpoch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.epochs[chatID][epoch]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneEpoch(e), nil
}

func (r *EpochRepository) ListByChat(_ context.Context, chatID string) ([]*models.KeyEpoch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	byEpoch := r.s.epochs[chatID]
	out := make([]*models.KeyEpoch, 0, len(byEpoch))
	for _, e := range byEpoch {
		out = append(out, cloneEpoch(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })
	return out, nil
}

func (r *EpochRepository) Retire(_ context.Context, chatID string, epoch int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.epochs[chatID][epoch]
	if !ok || e.RetiredAt != nil {
		return nil
	}
	e.RetiredAt = &at
	onRollback(r.db, func() { e.RetiredAt = nil })
	return nil
}

func (r *EpochRepository) IncrementUsage(_ context.Context, chatID string, epoch int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.epochs[chatID][epoch]
	if !ok {
		return 0, common.ErrorNotFound
	}
	e.UsageCount++
	onRollback(r.db, func() { e.UsageCount-- })
	return e.UsageCount, nil
}
