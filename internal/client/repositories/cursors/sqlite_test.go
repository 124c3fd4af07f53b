package cursors

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/client/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))
	return db
}

func TestAdvanceOnlyMovesForward(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	seq, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, r.Advance(ctx, "c1", 5, now))
	require.NoError(t, r.Advance(ctx, "c1", 3, now))
	require.NoError(t, r.Advance(ctx, "c2", 1, now))

	seq, err = r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)

	require.NoError(t, r.Advance(ctx, "c1", 9, now))
	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"c1": 9, "c2": 1}, all)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "c1")
	assert.ErrorContains(t, err, "get cursor c1")
	assert.ErrorContains(t, r.Advance(ctx, "c1", 1, time.Now()), "advance cursor c1")
	_, err = r.List(ctx)
	assert.ErrorContains(t, err, "list cursors")
}
