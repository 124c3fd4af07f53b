// Package epochs persists wrapped chat key epochs.
package epochs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const epochColumns = `chat_id, epoch, wrapped_key, wrap_nonce, usage_count, created_at, retired_at`

func (r *PostgresRepository) Create(ctx context.Context, e *models.KeyEpoch) error {
	query :=
		`INSERT INTO key_epochs (chat_id, epoch, wrapped_key, wrap_nonce)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, e.ChatID, e.Epoch, e.WrappedKey, e.WrapNonce).Scan(&e.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEpoch(s scanner) (*models.KeyEpoch, error) {
	var (
		e       models.KeyEpoch
		retired sql.NullTime
	)
	if err := s.Scan(&e.ChatID, &e.Epoch, &e.WrappedKey, &e.WrapNonce, &e.UsageCount, &e.CreatedAt, &retired); err != nil {
		return nil, err
	}
	e.RetiredAt = dbx.TimePtr(retired)
	return &e, nil
}

func (r *PostgresRepository) Get(ctx context.Context, chatID string, epoch int64) (*models.KeyEpoch, error) {
	query := `SELECT ` + epochColumns + ` FROM key_epochs WHERE chat_id = $1 AND epoch = $2`
	e, err := scanEpoch(r.db.QueryRowContext(ctx, query, chatID, epoch))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListByChat(ctx context.Context, chatID string) ([]*models.KeyEpoch, error) {
	query := `SELECT ` + epochColumns + ` FROM key_epochs WHERE chat_id = $1 ORDER BY epoch`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to select epochs: %w", err)
	}
	defer rows.Close()

	var result []*models.KeyEpoch
	for rows.Next() {
		e, err := scanEpoch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Retire(ctx context.Context, chatID string, epoch int64, at time.Time) error {
	query := `UPDATE key_epochs SET retired_at = $3 WHERE chat_id = $1 AND epoch = $2 AND retired_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, chatID, epoch, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IncrementUsage(ctx context.Context, chatID string, epoch int64) (int64, error) {
	query :=
		`UPDATE key_epochs SET usage_count = usage_count + 1
		 WHERE chat_id = $1 AND epoch = $2
		 RETURNING usage_count`

	var n int64
	err := r.db.QueryRowContext(ctx, query, chatID, epoch).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
