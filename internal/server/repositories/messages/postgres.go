// Package messages persists the per-chat ordered message log. Rows only ever
// hold ciphertext.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const messageColumns = `id, chat_id, sender_id, ciphertext, nonce, key_epoch, media_url, is_compressed,
	is_disappearing, expires_at, sequence, client_sent_at, created_at`

func (r *PostgresRepository) Insert(ctx context.Context, m *models.Message) error {
	query :=
		`INSERT INTO messages (id, chat_id, sender_id, ciphertext, nonce, key_epoch, media_url,
		                       is_compressed, is_disappearing, expires_at, sequence, client_sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.ChatID, m.SenderID, m.Ciphertext, m.Nonce, m.KeyEpoch, m.MediaURL,
		m.IsCompressed, m.IsDisappearing, dbx.NullTime(m.ExpiresAt), m.Sequence, dbx.NullTime(m.ClientSentAt),
	).Scan(&m.CreatedAt)
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

func scanMessage(s scanner) (*models.Message, error) {
	var (
		m                       models.Message
		expiresAt, clientSentAt sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Ciphertext, &m.Nonce, &m.KeyEpoch, &m.MediaURL,
		&m.IsCompressed, &m.IsDisappearing, &expiresAt, &m.Sequence, &clientSentAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ExpiresAt = dbx.TimePtr(expiresAt)
	m.ClientSentAt = dbx.TimePtr(clientSentAt)
	return &m, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListAfter(ctx context.Context, chatID string, after int64, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE chat_id = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, chatID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) ListPendingExpiry(ctx context.Context) ([]models.PendingExpiry, error) {
	query := `SELECT id, expires_at FROM messages WHERE expires_at IS NOT NULL ORDER BY expires_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending expiries: %w", err)
	}
	defer rows.Close()

	var result []models.PendingExpiry
	for rows.Next() {
		var p models.PendingExpiry
		if err := rows.Scan(&p.MessageID, &p.ExpiresAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
