package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/password"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "email", "password_hash", "plan", "credits", "api_key", "created_at", "updated_at"}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	require.NoError(t, err)
	return New(db, h), mock
}

func userRow(apiKey any) *sqlmock.Rows {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(columns).AddRow("u-1", "alice@example.com", "$argon2id$hash", "free", int64(0), apiKey, ts, ts)
}

func TestGetUserByID_Found(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("u-1").
		WillReturnRows(userRow(nil))

	u, err := s.GetUserByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "", u.APIKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*WHERE\s+email\s*=\s*\$1$`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUserByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, authgate.ErrUserNotFound)
}

func TestGetUserByID_MalformedUUID(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT`).WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: pgInvalidTextFormat})

	_, err := s.GetUserByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, authgate.ErrUserNotFound)
}

func TestCreateUser_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users\s*\(email,\s*password_hash,\s*plan\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*RETURNING`).
		WithArgs("alice@example.com", "$argon2id$hash", "free").
		WillReturnRows(userRow(nil))

	u, err := s.CreateUser(context.Background(), "alice@example.com", "$argon2id$hash", "free")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
}

func TestCreateUser_Duplicate(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := s.CreateUser(context.Background(), "alice@example.com", "h", "free")
	assert.ErrorIs(t, err, authgate.ErrUserExists)
}

func TestCreateUser_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT`).WillReturnError(errors.New("db down"))

	_, err := s.CreateUser(context.Background(), "alice@example.com", "h", "free")
	assert.ErrorIs(t, err, authgate.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "db down")
}

func TestUpdateUser_OnlySetFields(t *testing.T) {
	s, mock := newStoreWithMock(t)

	key := "ak_new"
	mock.ExpectQuery(`(?s)^UPDATE\s+users\s+SET.*api_key\s*=\s*COALESCE\(\$6,\s*api_key\).*WHERE\s+id\s*=\s*\$1`).
		WithArgs("u-1", nil, nil, nil, nil, "ak_new").
		WillReturnRows(userRow("ak_new"))

	u, err := s.UpdateUser(context.Background(), "u-1", authgate.UserUpdate{APIKey: &key})
	require.NoError(t, err)
	assert.Equal(t, "ak_new", u.APIKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_Missing(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`UPDATE`).WillReturnError(sql.ErrNoRows)

	plan := "pro"
	_, err := s.UpdateUser(context.Background(), "u-404", authgate.UserUpdate{Plan: &plan})
	assert.ErrorIs(t, err, authgate.ErrUserNotFound)
}

func TestMigrate_UsesEmbeddedFS(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	called := false
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, got *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		called = true
		assert.Same(t, db, got)
		assert.Equal(t, ".", dir)
		return nil
	}
	defer func() { gooseUpContext = orig }()

	require.NoError(t, Migrate(context.Background(), db))
	assert.True(t, called)
}

func TestMigrate_WrapsError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrating: boom")
}
