package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, s.Users(Conn{}).Create(ctx, &models.User{ID: id, Email: id + "@x.io", Role: models.RoleStaff, RoleWeight: 50, Status: models.UserActive}))
	}
	require.NoError(t, s.Chats(Conn{}).Create(ctx, &models.Chat{ID: "c1", Type: models.ChatGroup}, ""))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		seq, err := s.Chats(tx).IncrementSequence(ctx, "c1")
		require.NoError(t, err)
		require.EqualValues(t, 1, seq)
		require.NoError(t, s.Messages(tx).Insert(ctx, &models.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Sequence: seq}))
		return errors.New("commit failed")
	})
	require.Error(t, err)

	c, err := s.Chats(Conn{}).Get(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, c.LastSequence, "sequence must be rolled back")
	_, err = s.Messages(Conn{}).Get(ctx, "m1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			_, _ = s.Chats(tx).AddStorageUsed(ctx, "c1", 10)
			panic("kaput")
		})
	})
	c, _ := s.Chats(Conn{}).Get(ctx, "c1")
	assert.Zero(t, c.StorageUsedBytes)
}

func TestWithTx_CommitKeepsChanges(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.Users(tx).UpdateStatus(ctx, "u2", models.UserBanned, nil)
	}))
	u, err := s.Users(Conn{}).Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, models.UserBanned, u.Status)
}

func TestUsers_UniqueEmailAndCopies(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	err := s.Users(Conn{}).Create(ctx, &models.User{ID: "u3", Email: " U1@X.io"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	u, err := s.Users(Conn{}).GetByEmail(ctx, "U2@x.io")
	require.NoError(t, err)
	u.DisplayName = "mutated"
	again, _ := s.Users(Conn{}).Get(ctx, "u2")
	assert.Empty(t, again.DisplayName, "returned values must not alias storage")

	require.NoError(t, s.Users(Conn{}).UpdateRole(ctx, "u2", models.RoleDeveloper))
	again, _ = s.Users(Conn{}).Get(ctx, "u2")
	assert.Equal(t, 80, again.RoleWeight)
	assert.ErrorIs(t, s.Users(Conn{}).UpdateRole(ctx, "nobody", models.RoleStaff), common.ErrorNotFound)
}

func TestChats_ParticipantsAndDM(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	chats := s.Chats(Conn{})

	require.NoError(t, chats.AddParticipant(ctx, &models.Participant{ChatID: "c1", UserID: "u1", GroupRole: models.GroupOwner}))
	assert.ErrorIs(t, chats.AddParticipant(ctx, &models.Participant{ChatID: "c1", UserID: "u2", GroupRole: models.GroupOwner}), common.ErrorAlreadyExists, "one owner per group")
	require.NoError(t, chats.AddParticipant(ctx, &models.Participant{ChatID: "c1", UserID: "u2", GroupRole: models.GroupMember}))
	assert.ErrorIs(t, chats.AddParticipant(ctx, &models.Participant{ChatID: "c1", UserID: "ghost"}), common.ErrorNotFound)

	list, err := chats.ListParticipants(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, chats.UpdateGroupRole(ctx, "c1", "u2", models.GroupAdmin))
	p, err := chats.GetParticipant(ctx, "c1", "u2")
	require.NoError(t, err)
	assert.Equal(t, models.GroupAdmin, p.GroupRole)

	require.NoError(t, chats.RemoveParticipant(ctx, "c1", "u2"))
	assert.ErrorIs(t, chats.RemoveParticipant(ctx, "c1", "u2"), common.ErrorNotFound)

	key := models.DMKey("u1", "u2")
	require.NoError(t, chats.Create(ctx, &models.Chat{ID: "d1", Type: models.ChatDM}, key))
	assert.ErrorIs(t, chats.Create(ctx, &models.Chat{ID: "d2", Type: models.ChatDM}, key), common.ErrorAlreadyExists)
	dm, err := chats.GetDM(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "d1", dm.ID)

	mine, err := chats.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c1", mine[0].ID)
}

func TestMessages_OrderingAndDelete(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	msgs := s.Messages(Conn{})
	exp := time.Now().Add(time.Minute)

	for i := int64(1); i <= 5; i++ {
		m := &models.Message{ID: "m" + string(rune('0'+i)), ChatID: "c1", SenderID: "u1", Sequence: i}
		if i == 3 {
			m.IsDisappearing = true
			m.ExpiresAt = &exp
		}
		require.NoError(t, msgs.Insert(ctx, m))
	}
	assert.ErrorIs(t, msgs.Insert(ctx, &models.Message{ID: "dup", ChatID: "c1", Sequence: 2}), common.ErrorAlreadyExists)

	page, err := msgs.ListAfter(ctx, "c1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 2, page[0].Sequence)
	assert.EqualValues(t, 3, page[1].Sequence)

	pending, err := msgs.ListPendingExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.PendingExpiry{{MessageID: "m3", ExpiresAt: exp}}, pending)

	_, err = s.Receipts(Conn{}).Advance(ctx, &models.Receipt{MessageID: "m3", UserID: "u2", State: models.StateDelivered})
	require.NoError(t, err)

	removed, err := msgs.Delete(ctx, "m3")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = msgs.Delete(ctx, "m3")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Receipts(Conn{}).Get(ctx, "m3", "u2")
	assert.ErrorIs(t, err, common.ErrorNotFound, "receipts go with the message")

	rest, err := msgs.ListAfter(ctx, "c1", 0, 100)
	require.NoError(t, err)
	assert.Len(t, rest, 4)
}

func TestReceipts_ForwardOnly(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.Messages(Conn{}).Insert(ctx, &models.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Sequence: 1}))
	rs := s.Receipts(Conn{})

	changed, err := rs.Advance(ctx, &models.Receipt{MessageID: "m1", UserID: "u2", State: models.StateRead})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = rs.Advance(ctx, &models.Receipt{MessageID: "m1", UserID: "u2", State: models.StateDelivered})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = rs.Advance(ctx, &models.Receipt{MessageID: "m1", UserID: "u2", State: models.StateRead})
	require.NoError(t, err)
	assert.False(t, changed)

	rc, err := rs.Get(ctx, "m1", "u2")
	require.NoError(t, err)
	assert.Equal(t, models.StateRead, rc.State)

	_, err = rs.Advance(ctx, &models.Receipt{MessageID: "nope", UserID: "u2", State: models.StateRead})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	all, err := rs.ListByMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEpochs(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	es := s.Epochs(Conn{})

	require.NoError(t, es.Create(ctx, &models.KeyEpoch{ChatID: "c1", Epoch: 1, WrappedKey: []byte("k1")}))
	require.NoError(t, es.Create(ctx, &models.KeyEpoch{ChatID: "c1", Epoch: 2, WrappedKey: []byte("k2")}))
	assert.ErrorIs(t, es.Create(ctx, &models.KeyEpoch{ChatID: "c1", Epoch: 2}), common.ErrorAlreadyExists)

	n, err := es.IncrementUsage(ctx, "c1", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, es.Retire(ctx, "c1", 1, time.Now()))
	list, err := es.ListByChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.NotNil(t, list[0].RetiredAt)
	assert.Nil(t, list[1].RetiredAt)

	_, err = es.Get(ctx, "c1", 9)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestTasksAndWhitelist(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	ts := s.Tasks(Conn{})

	require.NoError(t, ts.Create(ctx, &models.Task{ID: "t1", TargetRoleWeight: 20, Status: models.TaskPending}))
	require.NoError(t, ts.Create(ctx, &models.Task{ID: "t2", TargetRoleWeight: 80, Status: models.TaskPending}))
	visible, err := ts.ListVisible(ctx, 50)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "t1", visible[0].ID)

	require.NoError(t, ts.UpdateStatus(ctx, "t1", models.TaskPending, models.TaskInProgress))
	assert.ErrorIs(t, ts.UpdateStatus(ctx, "t1", models.TaskPending, models.TaskCompleted), common.ErrVersionConflict)

	wl := s.Whitelist(Conn{})
	require.NoError(t, wl.Add(ctx, &models.WhitelistEntry{ID: "w1", Email: "b@x.io"}))
	require.NoError(t, wl.Add(ctx, &models.WhitelistEntry{ID: "w2", Email: "a@x.io"}))
	assert.ErrorIs(t, wl.Add(ctx, &models.WhitelistEntry{ID: "w3", Email: "a@x.io"}), common.ErrorAlreadyExists)
	ok, _ := wl.Exists(ctx, "a@x.io")
	assert.True(t, ok)
	all, _ := wl.List(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, "a@x.io", all[0].Email)
	require.NoError(t, wl.Remove(ctx, "a@x.io"))
	assert.ErrorIs(t, wl.Remove(ctx, "a@x.io"), common.ErrorNotFound)
}
