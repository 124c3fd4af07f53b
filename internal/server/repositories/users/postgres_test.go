package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
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

var selectCols = []string{"id", "email", "display_name", "pfp_url", "role", "role_weight", "status", "timeout_until", "public_key", "created_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users .* RETURNING created_at`).
		WithArgs("u1", "a@x.io", "Alice", "", "staff", 50, "active", "age1pub").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	u := &models.User{ID: "u1", Email: "a@x.io", DisplayName: "Alice", Role: models.RoleStaff, RoleWeight: 50, Status: models.UserActive, PublicKey: "age1pub"}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, created, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{ID: "u1", Email: "a@x.io"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.User{ID: "u1"})
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())
}

func TestGet_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	until := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(selectCols).
			AddRow("u1", "a@x.io", "Alice", "https://p", "developer", 80, "timeout", until, "age1", until))

	u, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleDeveloper, u.Role)
	assert.Equal(t, models.UserTimeout, u.Status)
	require.NotNil(t, u.TimeoutUntil)
	assert.Equal(t, until, *u.TimeoutUntil)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM users WHERE id`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetByEmail_Normalizes(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM users WHERE email = \$1`).
		WithArgs("bob@x.io").
		WillReturnRows(sqlmock.NewRows(selectCols).
			AddRow("u2", "bob@x.io", "Bob", "", "staff", 50, "active", nil, "", time.Now()))

	u, err := repo.GetByEmail(context.Background(), "  Bob@X.io ")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.ID)
	assert.Nil(t, u.TimeoutUntil)
}

func TestUpdateStatus(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	until := time.Now().Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET status = $2, timeout_until = $3 WHERE id = $1`)).
		WithArgs("u1", "timeout", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "u1", models.UserTimeout, &until))

	mock.ExpectExec(`UPDATE users SET status`).
		WithArgs("nobody", "banned", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "nobody", models.UserBanned, nil), common.ErrorNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRole(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET role = $2, role_weight = $3 WHERE id = $1`)).
		WithArgs("u1", "trial_staff", 20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateRole(context.Background(), "u1", models.RoleTrialStaff))

	mock.ExpectExec(`UPDATE users SET role`).WillReturnError(errors.New("boom"))
	assert.Error(t, repo.UpdateRole(context.Background(), "u1", models.RoleStaff))
}
