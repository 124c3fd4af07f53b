package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type MessageRepository struct {
	s  *Store
	db dbx.DBTX
}

func (s *Store) Messages(db dbx.DBTX) *MessageRepository { return &MessageRepository{s: s, db: db} }

func (r *MessageRepository) Insert(_ context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.chats[m.ChatID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := r.s.messages[m.ID]; ok {
		return common.ErrorAlreadyExists
	}
	seqs := r.s.bySeq[m.ChatID]
	if seqs == nil {
		seqs = make(map[int64]string)
		r.s.bySeq[m.ChatID] = seqs
	}
	if _, ok := seqs[m.Sequence]; ok {
		return common.ErrorAlreadyExists
	}
	m.CreatedAt = r.s.now()
	r.s.messages[m.ID] = cloneMessage(m)
	seqs[m.Sequence] = m.ID
	id, seq := m.ID, m.Sequence
	onRollback(r.db, func() {
		delete(r.s.messages, id)
		delete(seqs, seq)
	})
	return nil
}

func (r *MessageRepository) Get(_ context.Context, id string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneMessage(m), nil
}

func (r *MessageRepository) ListAfter(_ context.Context, chatID string, after int64, limit int) ([]*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seqs := r.s.bySeq[chatID]
	keys := make([]int64, 0, len(seqs))
	for seq := range seqs {
		if seq > after {
			keys = append(keys, seq)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]*models.Message, 0, len(keys))
	for _, seq := range keys {
		out = append(out, cloneMessage(r.s.messages[seqs[seq]]))
	}
	return out, nil
}

func (r *MessageRepository) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return false, nil
	}
	receipts := r.s.receipts[id]
	delete(r.s.messages, id)
	delete(r.s.bySeq[m.ChatID], m.Sequence)
	delete(r.s.receipts, id)
	onRollback(r.db, func() {
		r.s.messages[id] = m
		r.s.bySeq[m.ChatID][m.Sequence] = id
		if receipts != nil {
			r.s.receipts[id] = receipts
		}
	})
	return true, nil
}

func (r *MessageRepository) ListPendingExpiry(_ context.Context) ([]models.PendingExpiry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.PendingExpiry
	for id, m := range r.s.messages {
		if m.ExpiresAt != nil {
			out = append(out, models.PendingExpiry{MessageID: id, ExpiresAt: *m.ExpiresAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}
