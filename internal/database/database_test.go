package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"r53gate/internal/model"
	"r53gate/web"
)

// openTestDB connects to TEST_DATABASE_DSN and empties every table. Tests
// that need it are skipped when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn, web.MigrationsFS(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.conn.ExecContext(ctx, "TRUNCATE users, settings, audit_log RESTART IDENTITY")
	require.NoError(t, err)
	return db
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	u, err := db.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, u)

	created, err := db.CreateUser(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "local", created.AuthSource)
	assert.NotEqual(t, "pw1", created.PassHash)

	_, err = db.CreateUser(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrUserExists)

	got, err := db.AuthenticateUser(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = db.AuthenticateUser(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = db.AuthenticateUser(ctx, "ghost", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUser_ConcurrentDuplicates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = db.CreateUser(ctx, "racer", "pw")
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrUserExists)
	}
	assert.Equal(t, 1, ok)
}

func TestUpsertLDAPUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.UpsertLDAPUser(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "ldap", first.AuthSource)

	again, err := db.UpsertLDAPUser(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// Directory users cannot log in with a local password.
	_, err = db.AuthenticateUser(ctx, "carol", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpsertLDAPUser_LocalAccountUntouched(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	local, err := db.CreateUser(ctx, "erin", "pw")
	require.NoError(t, err)

	_, err = db.UpsertLDAPUser(ctx, "erin")
	assert.ErrorIs(t, err, ErrAccountConflict)

	got, err := db.AuthenticateUser(ctx, "erin", "pw")
	require.NoError(t, err)
	assert.Equal(t, local.ID, got.ID)
	assert.Equal(t, "local", got.AuthSource)
	assert.Equal(t, local.PassHash, got.PassHash)
}

func TestEnsureTokenSecret(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	secret, err := db.EnsureTokenSecret(ctx)
	require.NoError(t, err)
	assert.Len(t, secret, 128)

	again, err := db.EnsureTokenSecret(ctx)
	require.NoError(t, err)
	assert.Equal(t, secret, again)
}

func TestAuditLog(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, db.LogAudit(ctx, model.AuditEntry{
			Username:  "alice",
			Action:    fmt.Sprintf("action-%d", i),
			ZoneID:    "Z1",
			IPAddress: "192.0.2.1",
		}))
	}

	entries, total, err := db.ListAuditLog(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "action-2", entries[0].Action)
	assert.Equal(t, "Z1", entries[0].ZoneID)
	assert.Empty(t, entries[0].RecordName)

	entries, _, err = db.ListAuditLog(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "action-0", entries[0].Action)
}
