package client

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/arcticchat/internal/client/migrations"
	"github.com/dmitrijs2005/arcticchat/internal/client/repositories/cursors"
	"github.com/dmitrijs2005/arcticchat/internal/client/repositories/metadata"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories is the local SQLite state of the CLI.
type Repositories struct {
	DB       *sql.DB
	Metadata metadata.Repository
	Cursors  cursors.Repository
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the SQLite file at dsn and applies
// the embedded migrations.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer; the listen goroutine and the REPL share it.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repositories{
		DB:       db,
		Metadata: metadata.NewSQLiteRepository(db),
		Cursors:  cursors.NewSQLiteRepository(db),
	}, nil
}
