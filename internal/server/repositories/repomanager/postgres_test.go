package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNew_SelectsMode(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m, err := New("postgres", db)
	require.NoError(t, err)
	assert.IsType(t, &PostgresRepositoryManager{}, m)

	m, err = New("memory", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepositoryManager{}, m)

	_, err = New("cassandra", nil)
	var unknown *UnknownModeError
	assert.ErrorAs(t, err, &unknown)

	_, err = NewPostgresRepositoryManager(nil)
	assert.Error(t, err)
}

func TestFactories_ReturnRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	for _, m := range []RepositoryManager{&PostgresRepositoryManager{db: db}, NewMemoryRepositoryManager()} {
		conn := m.Conn()
		assert.NotNil(t, m.Users(conn))
		assert.NotNil(t, m.Whitelist(conn))
		assert.NotNil(t, m.Chats(conn))
		assert.NotNil(t, m.Messages(conn))
		assert.NotNil(t, m.Receipts(conn))
		assert.NotNil(t, m.Epochs(conn))
		assert.NotNil(t, m.Tasks(conn))
	}
}

func TestPostgresWithTx_CommitAndRollback(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()
	m := &PostgresRepositoryManager{db: db}

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, m.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := m.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{db: db}
	require.NoError(t, m.RunMigrations(context.Background()))
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{db: db}
	assert.EqualError(t, m.RunMigrations(context.Background()), "boom")
}

func TestMemoryManager_NoopsAndTx(t *testing.T) {
	m := NewMemoryRepositoryManager()
	ctx := context.Background()
	require.NoError(t, m.RunMigrations(ctx))
	require.NoError(t, m.Close())

	err := m.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error { return errors.New("nope") })
	assert.EqualError(t, err, "nope")
}
