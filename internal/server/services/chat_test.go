package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/keystore"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/epochs"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroup(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedUser(t, "owner", models.RoleStaff)
	e.seedUser(t, "m1", models.RoleStaff)

	chat, err := e.chats.CreateGroup(ctx, "owner", GroupRequest{Name: " ops ", MemberIDs: []string{"m1", "m1", "owner"}})
	require.NoError(t, err)
	assert.Equal(t, "ops", chat.Name)
	assert.Equal(t, models.ChatGroup, chat.Type)

	parts, err := e.chats.Participants(ctx, "m1", chat.ID)
	require.NoError(t, err)
	roles := map[string]models.GroupRole{}
	for _, p := range parts {
		roles[p.UserID] = p.GroupRole
	}
	assert.Equal(t, map[string]models.GroupRole{"owner": models.GroupOwner, "m1": models.GroupMember}, roles)

	epoch, err := e.keys.CurrentEpoch(ctx, chat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, epoch)

	_, err = e.chats.CreateGroup(ctx, "owner", GroupRequest{Name: ""})
	assert.ErrorIs(t, err, common.ErrorValidation)

	// Unknown members roll the whole group back.
	_, err = e.chats.CreateGroup(ctx, "owner", GroupRequest{Name: "x", MemberIDs: []string{"ghost"}})
	assert.ErrorIs(t, err, common.ErrorValidation)
	list, err := e.chats.List(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOpenDM_Idempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedUser(t, "a", models.RoleStaff)
	e.seedUser(t, "b", models.RoleStaff)

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor, other := "a", "b"
			if i%2 == 1 {
				actor, other = other, actor
			}
			chat, err := e.chats.OpenDM(ctx, actor, other)
			if assert.NoError(t, err) {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	_, err := e.chats.OpenDM(ctx, "a", "a")
	assert.ErrorIs(t, err, common.ErrAuthorizationDenied)
	_, err = e.chats.OpenDM(ctx, "a", "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMembershipChangesRotateKey(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedUser(t, "owner", models.RoleManagement)
	e.seedUser(t, "admin", models.RoleDeveloper)
	e.seedUser(t, "m", models.RoleStaff)
	e.seedUser(t, "boss", models.RoleManagement)
	chat := e.group(t, "owner", "admin", "m")

	require.NoError(t, e.chats.Promote(ctx, "owner", chat.ID, "admin"))

	e.seedUser(t, "late", models.RoleStaff)
	require.NoError(t, e.chats.AddParticipant(ctx, "owner", chat.ID, "boss"))

	// Global weight never grants group moderation.
	err := e.chats.Kick(ctx, "boss", chat.ID, "m")
	var denied *common.AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "not_group_moderator", denied.Reason)

	// Group moderation never overrides global weight either.
	err = e.chats.Kick(ctx, "admin", chat.ID, "boss")
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "insufficient_weight", denied.Reason)
	err = e.chats.Promote(ctx, "owner", chat.ID, "boss")
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "insufficient_weight", denied.Reason)

	require.NoError(t, e.chats.AddParticipant(ctx, "admin", chat.ID, "late"))
	assert.ErrorIs(t, e.chats.AddParticipant(ctx, "admin", chat.ID, "late"), common.ErrorAlreadyExists)
	require.NoError(t, e.chats.Kick(ctx, "admin", chat.ID, "m"))

	// Only the owner may remove a moderator.
	require.NoError(t, e.chats.Promote(ctx, "owner", chat.ID, "late"))
	err = e.chats.Kick(ctx, "admin", chat.ID, "late")
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "not_owner", denied.Reason)
	assert.ErrorIs(t, e.chats.Promote(ctx, "admin", chat.ID, "boss"), common.ErrAuthorizationDenied)
	require.NoError(t, e.chats.Demote(ctx, "owner", chat.ID, "late"))

	require.NoError(t, e.chats.Leave(ctx, "late", chat.ID))
	assert.ErrorIs(t, e.chats.Leave(ctx, "owner", chat.ID), common.ErrorValidation)

	// Add boss, add late, kick m, leave late. Rejected changes rotate nothing.
	epoch, err := e.keys.CurrentEpoch(ctx, chat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, epoch)

	_, err = e.chats.Get(ctx, "m", chat.ID)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "not_participant", denied.Reason)
}

func TestKick_LightModeratorCannotRemoveHeavierMember(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedUser(t, "owner", models.RoleStaff)
	e.seedUser(t, "trial", models.RoleTrialStaff)
	e.seedUser(t, "boss", models.RoleManagement)
	chat := e.group(t, "owner", "trial", "boss")

	require.NoError(t, e.chats.Promote(ctx, "owner", chat.ID, "trial"))
	err := e.chats.Kick(ctx, "trial", chat.ID, "boss")
	var denied *common.AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "insufficient_weight", denied.Reason)

	_, err = e.chats.Get(ctx, "boss", chat.ID)
	require.NoError(t, err)
	epoch, err := e.keys.CurrentEpoch(ctx, chat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, epoch)
}

// flakyRepos fails key epoch creation while armed.
type flakyRepos struct {
	*repomanager.MemoryRepositoryManager
	armed atomic.Bool
}

func (r *flakyRepos) Epochs(db dbx.DBTX) epochs.Repository {
	return flakyEpochs{Repository: r.MemoryRepositoryManager.Epochs(db), armed: &r.armed}
}

type flakyEpochs struct {
	epochs.Repository
	armed *atomic.Bool
}

func (f flakyEpochs) Create(ctx context.Context, ep *models.KeyEpoch) error {
	if f.armed.Load() {
		return errors.New("disk full")
	}
	return f.Repository.Create(ctx, ep)
}

func TestMembershipChange_RollsBackWhenRotationFails(t *testing.T) {
	repos := &flakyRepos{MemoryRepositoryManager: repomanager.NewMemoryRepositoryManager()}
	e := newTestEnvWith(t, repos)
	ctx := context.Background()
	e.seedUser(t, "owner", models.RoleManagement)
	e.seedUser(t, "m", models.RoleStaff)
	e.seedUser(t, "new", models.RoleStaff)
	chat := e.group(t, "owner", "m")

	repos.armed.Store(true)
	assert.Error(t, e.chats.Kick(ctx, "owner", chat.ID, "m"))
	assert.Error(t, e.chats.AddParticipant(ctx, "owner", chat.ID, "new"))
	assert.Error(t, e.chats.Leave(ctx, "m", chat.ID))
	repos.armed.Store(false)

	parts, err := e.chats.Participants(ctx, "owner", chat.ID)
	require.NoError(t, err)
	var ids []string
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	assert.ElementsMatch(t, []string{"owner", "m"}, ids)

	epoch, err := e.keys.CurrentEpoch(ctx, chat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, epoch)
	stored, err := repos.Chats(repos.Conn()).Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.CurrentEpoch)

	// Once storage recovers the same change goes through.
	require.NoError(t, e.chats.Kick(ctx, "owner", chat.ID, "m"))
	epoch, err = e.keys.CurrentEpoch(ctx, chat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, epoch)
}

func TestRotateKeyAndBundle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedUser(t, "owner", models.RoleStaff)
	e.seedUser(t, "m", models.RoleStaff)
	chat := e.group(t, "owner", "m")

	_, err := e.chats.RotateKey(ctx, "m", chat.ID)
	assert.ErrorIs(t, err, common.ErrAuthorizationDenied)
	epoch, err := e.chats.RotateKey(ctx, "owner", chat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, epoch)

	// Replace m's key with one we hold the identity for.
	identity, recipient, err := cryptox.GenerateIdentity()
	require.NoError(t, err)
	require.NoError(t, e.repos.Users(e.repos.Conn()).Create(ctx, &models.User{
		ID: "k", Email: "k@arctic.test", Role: models.RoleStaff, RoleWeight: 50, Status: models.UserActive, PublicKey: recipient,
	}))
	require.NoError(t, e.chats.AddParticipant(ctx, "owner", chat.ID, "k"))

	sealed, err := e.chats.KeyBundle(ctx, "k", chat.ID, 0)
	require.NoError(t, err)
	b, err := keystore.OpenBundle(sealed, identity)
	require.NoError(t, err)
	assert.EqualValues(t, 3, b.Epoch)
	assert.Equal(t, chat.ID, b.ChatID)

	_, err = e.chats.KeyBundle(ctx, "ghost", chat.ID, 0)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = e.chats.KeyBundle(ctx, "owner", "missing", 0)
	assert.ErrorIs(t, err, common.ErrChatNotFound)
}

func TestKeyBundle_OnlyEpochsSinceJoining(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedUser(t, "owner", models.RoleStaff)
	e.seedUser(t, "m", models.RoleStaff)
	chat := e.group(t, "owner", "m")

	identity, recipient, err := cryptox.GenerateIdentity()
	require.NoError(t, err)
	require.NoError(t, e.repos.Users(e.repos.Conn()).Create(ctx, &models.User{
		ID: "late", Email: "late@arctic.test", Role: models.RoleStaff, RoleWeight: 50, Status: models.UserActive, PublicKey: recipient,
	}))
	_, err = e.messages.Send(ctx, "owner", chat.ID, []byte("before late joined"), SendOptions{})
	require.NoError(t, err)
	require.NoError(t, e.chats.AddParticipant(ctx, "owner", chat.ID, "late"))

	p, err := e.repos.Chats(e.repos.Conn()).GetParticipant(ctx, chat.ID, "late")
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.FirstEpoch)

	_, err = e.chats.KeyBundle(ctx, "late", chat.ID, 1)
	var denied *common.AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "not_participant", denied.Reason)

	sealed, err := e.chats.KeyBundle(ctx, "late", chat.ID, 2)
	require.NoError(t, err)
	b, err := keystore.OpenBundle(sealed, identity)
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.Epoch)

	// Bundles of older epochs requested by earlier members leave late out.
	sealed, err = e.chats.KeyBundle(ctx, "owner", chat.ID, 1)
	require.NoError(t, err)
	_, err = keystore.OpenBundle(sealed, identity)
	assert.Error(t, err)
}
