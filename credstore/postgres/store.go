package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/credstore/postgres/migrations"
	"github.com/MrEthical07/authgate/password"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	pgUniqueViolation   = "23505"
	pgInvalidTextFormat = "22P02"
)

// DBTX is the subset of database/sql the store uses. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements authgate.CredentialStore.
type Store struct {
	db     DBTX
	hasher password.Hasher
}

var _ authgate.CredentialStore = (*Store)(nil)

// New returns a Store on db verifying passwords with hasher.
func New(db DBTX, hasher password.Hasher) *Store {
	return &Store{db: db, hasher: hasher}
}

// Open connects to dsn with the pgx driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	return nil
}

const userColumns = `id, email, password_hash, plan, credits, api_key, created_at, updated_at`

// GetUserByID loads a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id string) (authgate.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail loads a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (authgate.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// VerifyPassword checks pw against the stored argon2id hash.
func (s *Store) VerifyPassword(_ context.Context, user authgate.User, pw string) (bool, error) {
	return s.hasher.Verify(pw, user.HashedPassword)
}

// CreateUser inserts a user. A duplicate email returns authgate.ErrUserExists.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, plan string) (authgate.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, plan)
		 VALUES ($1, $2, $3)
		 RETURNING ` + userColumns

	return s.scanUser(s.db.QueryRowContext(ctx, query, email, passwordHash, plan))
}

// UpdateUser applies the non-nil fields of upd and returns the updated user.
func (s *Store) UpdateUser(ctx context.Context, id string, upd authgate.UserUpdate) (authgate.User, error) {
	query :=
		`UPDATE users SET
		   email = COALESCE($2, email),
		   password_hash = COALESCE($3, password_hash),
		   plan = COALESCE($4, plan),
		   credits = COALESCE($5, credits),
		   api_key = COALESCE($6, api_key),
		   updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns

	return s.scanUser(s.db.QueryRowContext(ctx, query,
		id,
		nullable(upd.Email),
		nullable(upd.HashedPassword),
		nullable(upd.Plan),
		nullable(upd.Credits),
		nullable(upd.APIKey),
	))
}

func (s *Store) scanUser(row *sql.Row) (authgate.User, error) {
	var (
		u      authgate.User
		apiKey sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.Plan, &u.Credits, &apiKey, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return authgate.User{}, mapError(err)
	}
	u.APIKey = apiKey.String
	return u, nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return authgate.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return authgate.ErrUserExists
		case pgInvalidTextFormat:
			// malformed uuid
			return authgate.ErrUserNotFound
		}
	}
	return fmt.Errorf("%w: db error: %v", authgate.ErrStoreUnavailable, err)
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
