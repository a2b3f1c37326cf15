package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"r53gate/internal/model"
)

const bcryptCost = 12

var (
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("username already exists")

	// ErrInvalidCredentials covers both an unknown user and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountConflict is returned when a directory login names a local account.
	ErrAccountConflict = errors.New("username belongs to a local account")
)

const userColumns = "id, username, pass_hash, auth_source, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.PassHash, &u.AuthSource, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByUsername returns nil, nil when no such user exists.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (db *DB) CreateUser(ctx context.Context, username, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`INSERT INTO users (username, pass_hash, auth_source) VALUES ($1, $2, 'local')
		 RETURNING `+userColumns,
		username, string(hash),
	))
	if isUniqueViolation(err) {
		return nil, ErrUserExists
	}
	return u, err
}

// AuthenticateUser verifies a local password. Directory-provisioned users have
// no local hash and never match.
func (db *DB) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	u, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || u.AuthSource != "local" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PassHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// UpsertLDAPUser provisions a directory user on first login and refreshes it
// afterwards. Local accounts are left untouched and yield ErrAccountConflict.
func (db *DB) UpsertLDAPUser(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`INSERT INTO users (username, pass_hash, auth_source)
		 VALUES ($1, '', 'ldap')
		 ON CONFLICT(username) DO UPDATE SET updated_at = NOW()
		 WHERE users.auth_source = 'ldap'
		 RETURNING `+userColumns,
		username,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountConflict
	}
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
