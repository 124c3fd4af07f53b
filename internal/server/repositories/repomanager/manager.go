package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/chats"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/epochs"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/users"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/whitelist"
)

// RepositoryManager vends repositories bound to a DBTX and runs transactions.
// Services obtain the plain handle from Conn and a transactional one from
// WithTx; the same constructors work with both.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Conn() dbx.DBTX
	WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	Close() error

	Users(db dbx.DBTX) users.Repository
	Whitelist(db dbx.DBTX) whitelist.Repository
	Chats(db dbx.DBTX) chats.Repository
	Messages(db dbx.DBTX) messages.Repository
	Receipts(db dbx.DBTX) receipts.Repository
	Epochs(db dbx.DBTX) epochs.Repository
	Tasks(db dbx.DBTX) tasks.Repository
}

// New returns the manager for the given storage mode ("postgres" or "memory").
// db is ignored in memory mode.
func New(mode string, db *sql.DB) (RepositoryManager, error) {
	switch mode {
	case "memory":
		return NewMemoryRepositoryManager(), nil
	case "postgres", "":
		return NewPostgresRepositoryManager(db)
	default:
		return nil, &UnknownModeError{Mode: mode}
	}
}

type UnknownModeError struct{ Mode string }

func (e *UnknownModeError) Error() string { return "repomanager: unknown storage mode " + e.Mode }
