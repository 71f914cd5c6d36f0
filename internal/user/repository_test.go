package user

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

var userCols = []string{"id", "name", "email", "credits", "phone", "profile_complete"}

func TestCreateIsIdempotentByEmail(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO users \(name, email, credits\) VALUES \(\$1, \$2, \$3\) ON CONFLICT \(email\) DO NOTHING`).
		WithArgs("Ann", "ann@example.com", DefaultCredits).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(7, "Ann Existing", "ann@example.com", 3, nil, true))

	u, err := repo.Create(context.Background(), "ann@example.com", "Ann")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "Ann Existing", u.Name)
	assert.Equal(t, 3, u.Credits)
	assert.Nil(t, u.Phone)
	assert.True(t, u.ProfileComplete)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	repo, mock := newMockRepo(t)
	phone := "555-0100"

	mock.ExpectQuery(`UPDATE users SET .* WHERE email = \$1\s+RETURNING`).
		WithArgs("ann@example.com", &phone, nil, nil, nil, nil, nil, nil, nil, nil, true).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(7, "Ann", "ann@example.com", 10, phone, true))

	u, err := repo.UpdateProfile(context.Background(), "ann@example.com", ProfileUpdate{Phone: &phone}, true)
	require.NoError(t, err)
	require.NotNil(t, u.Phone)
	assert.Equal(t, phone, *u.Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`UPDATE users SET`).WillReturnError(sql.ErrNoRows)

	_, err := repo.UpdateProfile(context.Background(), "ghost@example.com", ProfileUpdate{}, false)
	assert.ErrorIs(t, err, ErrNotFound)
}
