package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/blob"
	"github.com/dmitrijs2005/arcticchat/internal/server/delivery"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
	"github.com/dmitrijs2005/arcticchat/internal/server/expiry"
	"github.com/dmitrijs2005/arcticchat/internal/server/keystore"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// testEnv wires every service over the in-memory repositories and a shared
// fake clock.
type testEnv struct {
	repos  repomanager.RepositoryManager
	clock  *clockwork.FakeClock
	broker *events.Broker
	keys   *keystore.Engine
	dlog   *delivery.Log
	expiry *expiry.Scheduler
	blobs  *blob.MemoryStore

	users     *UserService
	whitelist *WhitelistService
	chats     *ChatService
	messages  *MessageService
	tasks     *TaskService
	media     *MediaService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, repomanager.NewMemoryRepositoryManager())
}

func newTestEnvWith(t *testing.T, repos repomanager.RepositoryManager) *testEnv {
	t.Helper()
	log := logging.Discard()
	e := &testEnv{
		repos:  repos,
		clock:  clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		broker: events.NewBroker(256),
		blobs:  blob.NewMemoryStore("mem://media"),
	}
	az := authz.NewEngine(e.clock, authz.Policy{AdminWeightThreshold: authz.DefaultAdminWeightThreshold})

	var err error
	e.keys, err = keystore.New(e.repos, cryptox.GenerateKey(), log, keystore.WithClock(e.clock))
	require.NoError(t, err)
	e.dlog = delivery.New(e.repos, e.broker, log, delivery.WithClock(e.clock))

	cfg := expiry.DefaultConfig()
	cfg.RetryInitialInterval = time.Millisecond
	e.expiry, err = expiry.New(cfg, e.dlog, e.repos.Messages(e.repos.Conn()), log, expiry.WithClock(e.clock))
	require.NoError(t, err)

	e.users = NewUserService(e.repos, az, log)
	e.whitelist = NewWhitelistService(e.repos, az, log)
	e.chats = NewChatService(e.repos, az, e.keys, log)
	e.messages = NewMessageService(e.repos, az, e.keys, e.dlog, e.expiry, log)
	e.tasks = NewTaskService(e.repos, az, log)
	e.media = NewMediaService(e.repos, az, e.blobs, log)
	return e
}

// seedUser stores a user with the given role, bypassing signup.
func (e *testEnv) seedUser(t *testing.T, id string, role models.Role) *models.User {
	t.Helper()
	_, recipient, err := cryptox.GenerateIdentity()
	require.NoError(t, err)
	u := &models.User{
		ID: id, Email: id + "@arctic.test", DisplayName: id,
		Role: role, RoleWeight: role.Weight(), Status: models.UserActive, PublicKey: recipient,
	}
	require.NoError(t, e.repos.Users(e.repos.Conn()).Create(context.Background(), u))
	return u
}

func (e *testEnv) group(t *testing.T, owner string, members ...string) *models.Chat {
	t.Helper()
	chat, err := e.chats.CreateGroup(context.Background(), owner, GroupRequest{Name: "ops", MemberIDs: members})
	require.NoError(t, err)
	return chat
}
