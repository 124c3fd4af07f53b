package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type ReceiptRepository struct {
	s  *Store
	db dbx.DBTX
}

func (s *Store) Receipts(db dbx.DBTX) *ReceiptRepository { return &ReceiptRepository{s: s, db: db} }

func (r *ReceiptRepository) Advance(_ context.Context, rc *models.Receipt) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[rc.MessageID]; !ok {
		return false, common.ErrorNotFound
	}
	byUser := r.s.receipts[rc.MessageID]
	if byUser == nil {
		byUser = make(map[string]*models.Receipt)
		r.s.receipts[rc.MessageID] = byUser
	}
	prev, ok := byUser[rc.UserID]
	if ok && prev.State >= rc.State {
		return false, nil
	}
	c := *rc
	byUser[rc.UserID] = &c
	onRollback(r.db, func() {
		if ok {
			byUser[c.UserID] = prev
		} else {
			delete(byUser, c.UserID)
		}
	})
	return true, nil
}

func (r *ReceiptRepository) Get(_ context.Context, messageID, userID string) (*models.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rc, ok := r.s.receipts[messageID][userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *rc
	return &c, nil
}

func (r *ReceiptRepository) ListByMessage(_ context.Context, messageID string) ([]*models.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	byUser := r.s.receipts[messageID]
	out := make([]*models.Receipt, 0, len(byUser))
	for _, rc := range byUser {
		c := *rc
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
