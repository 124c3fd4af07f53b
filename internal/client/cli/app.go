package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/client/client"
	"github.com/dmitrijs2005/arcticchat/internal/client/config"
	"github.com/dmitrijs2005/arcticchat/internal/client/repositories/cursors"
	"github.com/dmitrijs2005/arcticchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/arcticchat/internal/filex"
	"github.com/jonboulle/clockwork"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	client client.Client
	clock  clockwork.Clock
	out    io.Writer

	// Local state; nil when running without a database.
	meta    metadata.Repository
	cursors cursors.Repository
	closeDB func() error

	mu       sync.Mutex
	mode     Mode
	userName string
	chatID   string
	lastSeq  map[string]int64
	stopFeed context.CancelFunc
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	identity, created, err := loadOrCreateIdentity(c.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	if created {
		log.Printf("Generated a new identity in %s", c.IdentityFile)
	}

	if _, err := filex.EnsureSubdDir(filepath.Dir(c.LocalDBPath)); err != nil {
		return nil, err
	}
	repos, err := client.InitDatabase(ctx, c.LocalDBPath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	token := c.AccessToken
	if token == "" {
		if token, err = promptToken(); err != nil {
			repos.Close()
			return nil, fmt.Errorf("read token: %w", err)
		}
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, token, identity)
	if err != nil {
		repos.Close()
		return nil, err
	}

	app := newApp(c, apiClient, clockwork.NewRealClock(), os.Stdout)
	app.meta, app.cursors, app.closeDB = repos.Metadata, repos.Cursors, repos.Close
	if err := app.restore(ctx); err != nil {
		log.Printf("could not restore local state: %v", err)
	}
	return app, nil
}

// restore loads the open chat and the per-chat cursors from local storage.
func (a *App) restore(ctx context.Context) error {
	if a.meta == nil {
		return nil
	}
	chatID, _, err := a.meta.Get(ctx, metadata.KeyCurrentChat)
	if err != nil {
		return err
	}
	name, _, err := a.meta.Get(ctx, metadata.KeyDisplayName)
	if err != nil {
		return err
	}
	seqs, err := a.cursors.List(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatID, a.userName = chatID, name
	for id, seq := range seqs {
		a.lastSeq[id] = seq
	}
	return nil
}

// remember records seq as shown for chatID, locally and in memory.
func (a *App) remember(ctx context.Context, chatID string, seq int64) {
	a.seen(chatID, seq)
	if a.cursors == nil {
		return
	}
	if err := a.cursors.Advance(ctx, chatID, seq, a.clock.Now()); err != nil {
		log.Printf("saving cursor: %v", err)
	}
}

func (a *App) saveSetting(ctx context.Context, key, value string) {
	if a.meta == nil {
		return
	}
	if err := a.meta.Set(ctx, key, value); err != nil {
		log.Printf("saving %s: %v", key, err)
	}
}

func newApp(c *config.Config, cl client.Client, clock clockwork.Clock, out io.Writer) *App {
	return &App{config: c, client: cl, clock: clock, out: out, lastSeq: make(map[string]int64)}
}

func (a *App) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) currentChat() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chatID
}

func (a *App) setChat(ctx context.Context, id string) {
	a.mu.Lock()
	a.chatID = id
	a.mu.Unlock()
	a.saveSetting(ctx, metadata.KeyCurrentChat, id)
}

func (a *App) setUserName(ctx context.Context, name string) {
	a.mu.Lock()
	a.userName = name
	a.mu.Unlock()
	a.saveSetting(ctx, metadata.KeyDisplayName, name)
}

// seen records the highest sequence shown for chatID and returns it.
func (a *App) seen(chatID string, seq int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq > a.lastSeq[chatID] {
		a.lastSeq[chatID] = seq
	}
	return a.lastSeq[chatID]
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.chatID != "" {
		s = s + "#" + a.chatID + " "
	}
	s = s + string(a.mode)
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.client.Close()
	if a.closeDB != nil {
		defer a.closeDB()
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	a.Root(ctx)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.client.Ping(pctx); err != nil {
			a.setMode(ModeOffline)
			return
		}
		a.setMode(ModeOnline)
	}

	check()

	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			check()
		case <-ctx.Done():
			return
		}
	}
}
