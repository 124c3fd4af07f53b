package messages

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var msgCols = []string{"id", "chat_id", "sender_id", "ciphertext", "nonce", "key_epoch", "media_url", "is_compressed",
	"is_disappearing", "expires_at", "sequence", "client_sent_at", "created_at"}

func TestInsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	exp := now.Add(5 * time.Second)

	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("m1", "c1", "u1", []byte("ct"), []byte("nonce"), int64(2), "", true, true, sqlmock.AnyArg(), int64(7), nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	m := &models.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Ciphertext: []byte("ct"), Nonce: []byte("nonce"),
		KeyEpoch: 2, IsCompressed: true, IsDisappearing: true, ExpiresAt: &exp, Sequence: 7}
	require.NoError(t, repo.Insert(context.Background(), m))
	assert.Equal(t, now, m.CreatedAt)

	mock.ExpectQuery(`INSERT INTO messages`).WillReturnError(&pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, repo.Insert(context.Background(), m), common.ErrorAlreadyExists)

	mock.ExpectQuery(`INSERT INTO messages`).WillReturnError(errors.New("disk full"))
	assert.Regexp(t, `db error: .*disk full`, repo.Insert(context.Background(), m).Error())
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM messages WHERE id = \$1`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(msgCols).
			AddRow("m1", "c1", "u1", []byte("ct"), []byte("n"), 1, "", false, false, nil, 3, now, now))
	m, err := repo.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, m.Sequence)
	assert.Nil(t, m.ExpiresAt)
	require.NotNil(t, m.ClientSentAt)

	mock.ExpectQuery(`FROM messages WHERE id`).WithArgs("gone").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListAfter(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM messages WHERE chat_id = \$1 AND sequence > \$2 ORDER BY sequence LIMIT \$3`).
		WithArgs("c1", int64(5), 2).
		WillReturnRows(sqlmock.NewRows(msgCols).
			AddRow("m6", "c1", "u1", []byte("a"), []byte("n"), 1, "", false, false, nil, 6, nil, now).
			AddRow("m7", "c1", "u2", []byte("b"), []byte("n"), 1, "", false, false, nil, 7, nil, now))

	got, err := repo.ListAfter(context.Background(), "c1", 5, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 6, got[0].Sequence)
	assert.EqualValues(t, 7, got[1].Sequence)
}

func TestDelete_Idempotent(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM messages WHERE id = \$1`).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 1))
	removed, err := repo.Delete(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, removed)

	mock.ExpectExec(`DELETE FROM messages`).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 0))
	removed, err = repo.Delete(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, removed)

	mock.ExpectExec(`DELETE FROM messages`).WillReturnError(errors.New("down"))
	_, err = repo.Delete(context.Background(), "m1")
	assert.Error(t, err)
}

func TestListPendingExpiry(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	t1 := time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, expires_at FROM messages WHERE expires_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "expires_at"}).AddRow("m1", t1))
	got, err := repo.ListPendingExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.PendingExpiry{{MessageID: "m1", ExpiresAt: t1}}, got)
}
