// Package chats persists chats and their participant sets.
package chats

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

const chatColumns = `id, type, name, description, pfp_url, current_epoch, last_sequence, storage_used_bytes, created_at, deleted_at`

func (r *PostgresRepository) Create(ctx context.Context, chat *models.Chat, dmKey string) error {
	query :=
		`INSERT INTO chats (id, type, name, description, pfp_url, dm_key)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		chat.ID, string(chat.Type), chat.Name, chat.Description, chat.PfpURL, dbx.NullString(dmKey),
	).Scan(&chat.CreatedAt)
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

func scanChat(s scanner) (*models.Chat, error) {
	var (
		c         models.Chat
		typ       string
		deletedAt sql.NullTime
	)
	if err := s.Scan(&c.ID, &typ, &c.Name, &c.Description, &c.PfpURL, &c.CurrentEpoch,
		&c.LastSequence, &c.StorageUsedBytes, &c.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	c.Type = models.ChatType(typ)
	c.DeletedAt = dbx.TimePtr(deletedAt)
	return &c, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.Chat, error) {
	c, err := scanChat(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Chat, error) {
	return r.getOne(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *PostgresRepository) GetDM(ctx context.Context, dmKey string) (*models.Chat, error) {
	return r.getOne(ctx, `SELECT `+chatColumns+` FROM chats WHERE dm_key = $1 AND deleted_at IS NULL`, dmKey)
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*models.Chat, error) {
	query :=
		`SELECT c.id, c.type, c.name, c.description, c.pfp_url, c.current_epoch, c.last_sequence,
		        c.storage_used_bytes, c.created_at, c.deleted_at
		 FROM chats c JOIN chat_participants p ON p.chat_id = c.id
		 WHERE p.user_id = $1 AND c.deleted_at IS NULL
		 ORDER BY c.created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chats: %w", err)
	}
	defer rows.Close()

	var result []*models.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) IncrementSequence(ctx context.Context, chatID string) (int64, error) {
	query :=
		`UPDATE chats SET last_sequence = last_sequence + 1
		 WHERE id = $1
		 RETURNING last_sequence`

	var seq int64
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return seq, nil
}

func (r *PostgresRepository) SetCurrentEpoch(ctx context.Context, chatID string, epoch int64) error {
	return r.execOne(ctx, `UPDATE chats SET current_epoch = $2 WHERE id = $1`, chatID, epoch)
}

func (r *PostgresRepository) AddStorageUsed(ctx context.Context, chatID string, delta int64) (int64, error) {
	query :=
		`UPDATE chats SET storage_used_bytes = storage_used_bytes + $2
		 WHERE id = $1
		 RETURNING storage_used_bytes`

	var total int64
	err := r.db.QueryRowContext(ctx, query, chatID, delta).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, p *models.Participant) error {
	query :=
		`INSERT INTO chat_participants (chat_id, user_id, group_role, first_epoch)
		 VALUES ($1, $2, $3, $4)
		 RETURNING joined_at`

	p.FirstEpoch = p.EffectiveFirstEpoch()
	err := r.db.QueryRowContext(ctx, query, p.ChatID, p.UserID, string(p.GroupRole), p.FirstEpoch).Scan(&p.JoinedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	return r.execOne(ctx, `DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
}

func (r *PostgresRepository) GetParticipant(ctx context.Context, chatID, userID string) (*models.Participant, error) {
	query := `SELECT chat_id, user_id, group_role, first_epoch, joined_at FROM chat_participants WHERE chat_id = $1 AND user_id = $2`

	var (
		p    models.Participant
		role string
	)
	err := r.db.QueryRowContext(ctx, query, chatID, userID).Scan(&p.ChatID, &p.UserID, &role, &p.FirstEpoch, &p.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.GroupRole = models.GroupRole(role)
	return &p, nil
}

func (r *PostgresRepository) ListParticipants(ctx context.Context, chatID string) ([]*models.Participant, error) {
	query := `SELECT chat_id, user_id, group_role, first_epoch, joined_at FROM chat_participants WHERE chat_id = $1 ORDER BY joined_at, user_id`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to select participants: %w", err)
	}
	defer rows.Close()

	var result []*models.Participant
	for rows.Next() {
		var (
			p    models.Participant
			role string
		)
		if err := rows.Scan(&p.ChatID, &p.UserID, &role, &p.FirstEpoch, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.GroupRole = models.GroupRole(role)
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) UpdateGroupRole(ctx context.Context, chatID, userID string, role models.GroupRole) error {
	return r.execOne(ctx, `UPDATE chat_participants SET group_role = $3 WHERE chat_id = $1 AND user_id = $2`, chatID, userID, string(role))
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
