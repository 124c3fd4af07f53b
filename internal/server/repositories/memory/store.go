// Package memory implements every repository in process memory. It backs the
// "memory" storage mode and the service-level tests.
//
// Transactions are emulated with an undo log: mutations made through a *Tx
// handle register a compensating action that runs if the transaction fails.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

var errNoSQL = errors.New("memory: SQL is not supported")

// Store holds all tables.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	users     map[string]*models.User
	emails    map[string]string
	whitelist map[string]*models.WhitelistEntry

	chats        map[string]*models.Chat
	dmKeys       map[string]string
	participants map[string]map[string]*models.Participant

	epochs map[string]map[int64]*models.KeyEpoch

	messages map[string]*models.Message
	bySeq    map[string]map[int64]string
	receipts map[string]map[string]*models.Receipt

	tasks map[string]*models.Task
}

func NewStore() *Store {
	return &Store{
		now:          time.Now,
		users:        make(map[string]*models.User),
		emails:       make(map[string]string),
		whitelist:    make(map[string]*models.WhitelistEntry),
		chats:        make(map[string]*models.Chat),
		dmKeys:       make(map[string]string),
		participants: make(map[string]map[string]*models.Participant),
		epochs:       make(map[string]map[int64]*models.KeyEpoch),
		messages:     make(map[string]*models.Message),
		bySeq:        make(map[string]map[int64]string),
		receipts:     make(map[string]map[string]*models.Receipt),
		tasks:        make(map[string]*models.Task),
	}
}

// Conn is the non-transactional handle.
type Conn struct{}

func (Conn) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, errNoSQL }
func (Conn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) { return nil, errNoSQL }
func (Conn) QueryRowContext(context.Context, string, ...any) *sql.Row        { return nil }

// Tx is the transactional handle passed to repositories inside WithTx.
type Tx struct {
	Conn
	undo []func()
}

// onRollback registers fn when db is a transaction. Must be called with the
// store lock held.
func onRollback(db dbx.DBTX, fn func()) {
	if tx, ok := db.(*Tx); ok {
		tx.undo = append(tx.undo, fn)
	}
}

// WithTx runs fn with a *Tx handle and reverts its mutations on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	tx := &Tx{}
	rollback := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
		if err != nil {
			rollback()
		}
	}()

	return fn(ctx, tx)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.TimeoutUntil = cloneTime(u.TimeoutUntil)
	return &c
}

func cloneChat(c *models.Chat) *models.Chat {
	cc := *c
	cc.DeletedAt = cloneTime(c.DeletedAt)
	return &cc
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	c.Ciphertext = append([]byte(nil), m.Ciphertext...)
	c.Nonce = append([]byte(nil), m.Nonce...)
	c.ExpiresAt = cloneTime(m.ExpiresAt)
	c.ClientSentAt = cloneTime(m.ClientSentAt)
	return &c
}

func cloneEpoch(e *models.KeyEpoch) *models.KeyEpoch {
	c := *e
	c.WrappedKey = append([]byte(nil), e.WrappedKey...)
	c.WrapNonce = append([]byte(nil), e.WrapNonce...)
	c.RetiredAt = cloneTime(e.RetiredAt)
	return &c
}
