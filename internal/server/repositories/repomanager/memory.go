package repomanager

import (
	"context"

	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/chats"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/epochs"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/memory"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/users"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/whitelist"
)

// MemoryRepositoryManager keeps everything in a single memory.Store.
type MemoryRepositoryManager struct {
	store *memory.Store
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{store: memory.NewStore()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *MemoryRepositoryManager) Conn() dbx.DBTX { return memory.Conn{} }
func (m *MemoryRepositoryManager) Close() error { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return m.store.WithTx(ctx, fn)
}

func (m *MemoryRepositoryManager) Users(db dbx.DBTX) users.Repository { return m.store.Users(db) }
func (m *MemoryRepositoryManager) Whitelist(db dbx.DBTX) whitelist.Repository {
	return m.store.Whitelist(db)
}
func (m *MemoryRepositoryManager) Chats(db dbx.DBTX) chats.Repository { return m.store.Chats(db) }
func (m *MemoryRepositoryManager) Messages(db dbx.DBTX) messages.Repository { return m.store.Messages(db) }
func (m *MemoryRepositoryManager) Receipts(db dbx.DBTX) receipts.Repository { return m.store.Receipts(db) }
func (m *MemoryRepositoryManager) Epochs(db dbx.DBTX) epochs.Repository { return m.store.Epochs(db) }
func (m *MemoryRepositoryManager) Tasks(db dbx.DBTX) tasks.Repository { return m.store.Tasks(db) }
