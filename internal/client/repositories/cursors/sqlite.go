package cursors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, chatID string) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT last_sequence FROM cursors WHERE chat_id = ?`, chatID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cursor %s: %w", chatID, err)
	}
	return seq, nil
}

func (r *SQLiteRepository) Advance(ctx context.Context, chatID string, seq int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (chat_id, last_sequence, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_sequence = max(cursors.last_sequence, excluded.last_sequence),
			updated_at = excluded.updated_at
	`, chatID, seq, at.UTC())
	if err != nil {
		return fmt.Errorf("advance cursor %s: %w", chatID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chat_id, last_sequence FROM cursors`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var seq int64
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		out[id] = seq
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", err)
	}
	return out, nil
}
