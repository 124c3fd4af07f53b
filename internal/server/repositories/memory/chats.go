package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type ChatRepository struct {
	s  *Store
	db dbx.DBTX
}

func (s *Store) Chats(db dbx.DBTX) *ChatRepository { return &ChatRepository{s: s, db: db} }

func (r *ChatRepository) Create(_ context.Context, chat *models.Chat, dmKey string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.chats[chat.ID]; ok {
		return common.ErrorAlreadyExists
	}
	if dmKey != "" {
		if _, ok := r.s.dmKeys[dmKey]; ok {
			return common.ErrorAlreadyExists
		}
		r.s.dmKeys[dmKey] = chat.ID
	}
	chat.CreatedAt = r.s.now()
	r.s.chats[chat.ID] = cloneChat(chat)
	r.s.participants[chat.ID] = make(map[string]*models.Participant)
	id := chat.ID
	onRollback(r.db, func() {
		delete(r.s.chats, id)
		delete(r.s.participants, id)
		if dmKey != "" {
			delete(r.s.dmKeys, dmKey)
		}
	})
	return nil
}

func (r *ChatRepository) liveChat(id string) (*models.Chat, bool) {
	c, ok := r.s.chats[id]
	if !ok || c.DeletedAt != nil {
		return nil, false
	}
	return c, true
}

func (r *ChatRepository) Get(_ context.Context, id string) (*models.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.liveChat(id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneChat(c), nil
}

func (r *ChatRepository) GetDM(ctx context.Context, dmKey string) (*models.Chat, error) {
	r.s.mu.RLock()
	id, ok := r.s.dmKeys[dmKey]
	r.s.mu.RUnlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.Get(ctx, id)
}

func (r *ChatRepository) ListForUser(_ context.Context, userID string) ([]*models.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Chat
	for chatID, ps := range r.s.participants {
		if _, ok := ps[userID]; !ok {
			continue
		}
		if c, ok := r.liveChat(chatID); ok {
			out = append(out, cloneChat(c))
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

func (r *ChatRepository) IncrementSequence(_ context.Context, chatID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	c.LastSequence++
	onRollback(r.db, func() { c.LastSequence-- })
	return c.LastSequence, nil
}

func (r *ChatRepository) SetCurrentEpoch(_ context.Context, chatID string, epoch int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return common.ErrorNotFound
	}
	prev := c.CurrentEpoch
	c.CurrentEpoch = epoch
	onRollback(r.db, func() { c.CurrentEpoch = prev })
	return nil
}

func (r *ChatRepository) AddStorageUsed(_ context.Context, chatID string, delta int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	c.StorageUsedBytes += delta
	onRollback(r.db, func() { c.StorageUsedBytes -= delta })
	return c.StorageUsedBytes, nil
}

func (r *ChatRepository) AddParticipant(_ context.Context, p *models.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ps, ok := r.s.participants[p.ChatID]
	if !ok {
		return common.ErrorNotFound
	}
	if _, ok := r.s.users[p.UserID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := ps[p.UserID]; ok {
		return common.ErrorAlreadyExists
	}
	if p.GroupRole == models.GroupOwner {
		for _, other := range ps {
			if other.GroupRole == models.GroupOwner {
				return common.ErrorAlreadyExists
			}
		}
	}
	p.FirstEpoch = p.EffectiveFirstEpoch()
	p.JoinedAt = r.s.now()
	c := *p
	ps[p.UserID] = &c
	onRollback(r.db, func() { delete(ps, c.UserID) })
	return nil
}

func (r *ChatRepository) RemoveParticipant(_ context.Context, chatID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ps := r.s.participants[chatID]
	prev, ok := ps[userID]
	if !ok {
		return common.ErrorNotFound
	}
	delete(ps, userID)
	onRollback(r.db, func() { ps[userID] = prev })
	return nil
}

func (r *ChatRepository) GetParticipant(_ context.Context, chatID, userID string) (*models.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.participants[chatID][userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	return &c, nil
}

func (r *ChatRepository) ListParticipants(_ context.Context, chatID string) ([]*models.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ps := r.s.participants[chatID]
	out := make([]*models.Participant, 0, len(ps))
	for _, p := range ps {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (r *ChatRepository) UpdateGroupRole(_ context.Context, chatID, userID string, role models.GroupRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participants[chatID][userID]
	if !ok {
		return common.ErrorNotFound
	}
	prev := p.GroupRole
	p.GroupRole = role
	onRollback(r.db, func() { p.GroupRole = prev })
	return nil
}
