// Package receipts persists per-recipient delivery state.
package receipts

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

// Advance upserts the receipt; the WHERE clause keeps the state machine
// forward-only even under concurrent acks.
func (r *PostgresRepository) Advance(ctx context.Context, rc *models.Receipt) (bool, error) {
	query := `
		INSERT INTO receipts (message_id, user_id, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
			WHERE receipts.state < EXCLUDED.state
	`
	res, err := r.db.ExecContext(ctx, query, rc.MessageID, rc.UserID, int(rc.State), rc.UpdatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return false, common.ErrorNotFound
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) Get(ctx context.Context, messageID, userID string) (*models.Receipt, error) {
	query := `SELECT message_id, user_id, state, updated_at FROM receipts WHERE message_id = $1 AND user_id = $2`

	var (
		rc    models.Receipt
		state int
	)
	err := r.db.QueryRowContext(ctx, query, messageID, userID).Scan(&rc.MessageID, &rc.UserID, &state, &rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	rc.State = models.DeliveryState(state)
	return &rc, nil
}

func (r *PostgresRepository) ListByMessage(ctx context.Context, messageID string) ([]*models.Receipt, error) {
	query := `SELECT message_id, user_id, state, updated_at FROM receipts WHERE message_id = $1 ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to select receipts: %w", err)
	}
	defer rows.Close()

	var result []*models.Receipt
	for rows.Next() {
		var (
			rc    models.Receipt
			state int
		)
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &state, &rc.UpdatedAt); err != nil {
			return nil, err
		}
		rc.State = models.DeliveryState(state)
		result = append(result, &rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
