// Package server assembles the messaging core from configuration: storage,
// the crypto envelope engine, the delivery log, the expiry scheduler, event
// fan-out, the blob store and the gRPC transport. It also owns process
// lifecycle and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/blob"
	"github.com/dmitrijs2005/arcticchat/internal/server/config"
	"github.com/dmitrijs2005/arcticchat/internal/server/delivery"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
	"github.com/dmitrijs2005/arcticchat/internal/server/expiry"
	"github.com/dmitrijs2005/arcticchat/internal/server/keystore"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/arcticchat/internal/server/services"
	"github.com/jonboulle/clockwork"

	gs "github.com/dmitrijs2005/arcticchat/internal/server/grpc"
)

// kekInfo binds the derived key-encryption key to its purpose.
const kekInfo = "arctic/epoch-kek/v1"

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	broker *events.Broker
	rabbit *events.Rabbit
	expiry *expiry.Scheduler
	server *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(logging.Backend(c.LogBackend), c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	app := &App{config: c, logger: logger}
	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	var db *sql.DB
	if c.StorageMode == config.StoragePostgres {
		var err error
		if db, err = sql.Open("pgx", c.DatabaseDSN); err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
	}
	repos, err := repomanager.New(c.StorageMode, db)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.repos = repos
	if err := repos.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	master := cryptox.DeriveMasterKey([]byte(c.MasterSecret), []byte(c.MasterSalt))
	kek, err := cryptox.DeriveSubkey(master, kekInfo)
	common.WipeByteArray(master)
	if err != nil {
		return fmt.Errorf("derive kek: %w", err)
	}
	keys, err := keystore.New(repos, kek, app.logger, keystore.WithRotateAfter(c.RotateAfterMessages))
	common.WipeByteArray(kek)
	if err != nil {
		return err
	}

	// With RabbitMQ every node publishes to the exchange and relays the
	// exchange back into its local broker, its own events included.
	app.broker = events.NewBroker(events.DefaultBuffer)
	var pub events.Publisher = app.broker
	if c.RabbitURL != "" {
		if app.rabbit, err = events.DialRabbit(c.RabbitURL, c.RabbitExchange, app.logger); err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		pub = app.rabbit
	}

	dlog := delivery.New(repos, pub, app.logger, delivery.WithRateLimit(c.AppendRatePerSecond, c.AppendBurst))
	app.expiry, err = expiry.New(c.ExpiryConfig(), dlog, repos.Messages(repos.Conn()), app.logger)
	if err != nil {
		return err
	}

	var blobs blob.Store
	switch c.BlobStore {
	case config.BlobS3:
		blobs, err = blob.NewS3Store(ctx, blob.S3Config{
			Region:        c.S3Region,
			Endpoint:      c.S3BaseEndpoint,
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			Bucket:        c.S3Bucket,
			PublicBaseURL: c.S3PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("blob store: %w", err)
		}
	default:
		blobs = blob.NewMemoryStore("mem://media")
	}

	az := authz.NewEngine(clockwork.NewRealClock(), authz.Policy{AdminWeightThreshold: c.AdminWeightThreshold})
	svc := gs.Services{
		Users:     services.NewUserService(repos, az, app.logger),
		Whitelist: services.NewWhitelistService(repos, az, app.logger),
		Chats:     services.NewChatService(repos, az, keys, app.logger),
		Messages:  services.NewMessageService(repos, az, keys, dlog, app.expiry, app.logger),
		Tasks:     services.NewTaskService(repos, az, app.logger),
		Media:     services.NewMediaService(repos, az, blobs, app.logger),
	}
	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger, svc, app.broker, c.SecretKey)
	return nil
}

func (app *App) close(ctx context.Context) {
	if app.rabbit != nil {
		if err := app.rabbit.Close(); err != nil {
			app.logger.Warn(ctx, "rabbitmq close", "error", err)
		}
	}
	if app.repos != nil {
		if err := app.repos.Close(); err != nil {
			app.logger.Warn(ctx, "storage close", "error", err)
		}
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runWorker runs fn and cancels the whole app if it fails.
func (app *App) runWorker(ctx context.Context, cancelFunc context.CancelFunc, wg *sync.WaitGroup, name string, fn func(ctx context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			app.logger.Error(ctx, "worker failed", "worker", name, "error", err)
			cancelFunc()
		}
	}()
}

// Run serves until the parent context is cancelled or a termination signal
// arrives.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	// Deadlines that passed while the server was down are purged on the
	// first sweep.
	n, err := app.expiry.Restore(ctx)
	if err != nil {
		app.logger.Error(ctx, "restoring expiry deadlines", "error", err)
	} else {
		app.logger.Info(ctx, "expiry deadlines restored", "pending", n)
	}

	var wg sync.WaitGroup

	app.runWorker(ctx, cancelFunc, &wg, "grpc", app.server.Run)
	app.runWorker(ctx, cancelFunc, &wg, "expiry", app.expiry.Run)
	if app.rabbit != nil {
		app.runWorker(ctx, cancelFunc, &wg, "relay", func(ctx context.Context) error {
			return app.rabbit.Relay(ctx, app.broker)
		})
	}

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}
