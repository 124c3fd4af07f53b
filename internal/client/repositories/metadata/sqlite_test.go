package metadata

import (
	"context"
	"database/sql"
	"testing"

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

func TestSetGetDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, ok, err := r.Get(ctx, KeyCurrentChat)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, KeyCurrentChat, "c1"))
	require.NoError(t, r.Set(ctx, KeyCurrentChat, "c2"))

	v, ok, err := r.Get(ctx, KeyCurrentChat)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c2", v)

	require.NoError(t, r.Delete(ctx, KeyCurrentChat))
	require.NoError(t, r.Delete(ctx, KeyCurrentChat))
	_, ok, err = r.Get(ctx, KeyCurrentChat)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyValueIsPresent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyDisplayName, ""))
	v, ok, err := r.Get(ctx, KeyDisplayName)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, _, err := r.Get(ctx, "k")
	assert.ErrorContains(t, err, "get metadata[k]")
	assert.ErrorContains(t, r.Set(ctx, "k", "v"), "set metadata[k]")
	assert.ErrorContains(t, r.Delete(ctx, "k"), "delete metadata[k]")
}
