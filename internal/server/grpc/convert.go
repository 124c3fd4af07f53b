package grpc

import (
	"github.com/dmitrijs2005/arcticchat/internal/api"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

func toUser(u *models.User) *api.User {
	if u == nil {
		return nil
	}
	return &api.User{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PfpURL:       u.PfpURL,
		Role:         string(u.Role),
		RoleWeight:   u.RoleWeight,
		Status:       string(u.Status),
		TimeoutUntil: u.TimeoutUntil,
		PublicKey:    u.PublicKey,
		CreatedAt:    u.CreatedAt,
	}
}

func toChat(c *models.Chat) *api.Chat {
	return &api.Chat{
		ID:               c.ID,
		Type:             string(c.Type),
		Name:             c.Name,
		Description:      c.Description,
		PfpURL:           c.PfpURL,
		CurrentEpoch:     c.CurrentEpoch,
		LastSequence:     c.LastSequence,
		StorageUsedBytes: c.StorageUsedBytes,
		CreatedAt:        c.CreatedAt,
	}
}

func toParticipant(p *models.Participant) *api.Participant {
	return &api.Participant{ChatID: p.ChatID, UserID: p.UserID, GroupRole: string(p.GroupRole), JoinedAt: p.JoinedAt}
}

func toMessage(m *models.Message) *api.Message {
	if m == nil {
		return nil
	}
	return &api.Message{
		ID:             m.ID,
		ChatID:         m.ChatID,
		SenderID:       m.SenderID,
		Ciphertext:     m.Ciphertext,
		Nonce:          m.Nonce,
		KeyEpoch:       m.KeyEpoch,
		MediaURL:       m.MediaURL,
		IsCompressed:   m.IsCompressed,
		IsDisappearing: m.IsDisappearing,
		ExpiresAt:      m.ExpiresAt,
		Sequence:       m.Sequence,
		ClientSentAt:   m.ClientSentAt,
		CreatedAt:      m.CreatedAt,
	}
}

func toReceipt(r *models.Receipt) *api.Receipt {
	if r == nil {
		return nil
	}
	return &api.Receipt{MessageID: r.MessageID, UserID: r.UserID, State: r.State.String(), UpdatedAt: r.UpdatedAt}
}

func toTask(t *models.Task) *api.Task {
	return &api.Task{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		AssignedBy:       t.AssignedBy,
		TargetRoleWeight: t.TargetRoleWeight,
		Status:           string(t.Status),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func toWhitelistEntry(e *models.WhitelistEntry) *api.WhitelistEntry {
	return &api.WhitelistEntry{ID: e.ID, Email: e.Email, AddedBy: e.AddedBy, CreatedAt: e.CreatedAt}
}

func toEvent(ev events.Event) *api.Event {
	return &api.Event{
		Kind:       string(ev.Kind),
		ChatID:     ev.ChatID,
		Sequence:   ev.Sequence,
		MessageID:  ev.MessageID,
		Message:    toMessage(ev.Message),
		Receipt:    toReceipt(ev.Receipt),
		OccurredAt: ev.OccurredAt,
	}
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
