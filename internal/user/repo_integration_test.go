//go:build integration

package user_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mehmetcc/lms/internal/database"
	"github.com/mehmetcc/lms/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lms_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db, zap.NewNop()))
	return db
}

func TestPostgresStoreAgainstRealDatabase(t *testing.T) {
	db := setupPostgres(t)
	store := user.NewPostgresStore(db, zap.NewNop())
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, store.Create(ctx, user.NewUser(id, "Ada", "Ada@School.test", "hash", user.RoleTeacher)))

	err := store.Create(ctx, user.NewUser(uuid.NewString(), "Copy", "ada@school.TEST", "hash", user.RoleStudent))
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)

	u, err := store.FindByEmail(ctx, "ada@school.test")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, user.RoleTeacher, u.Role)
	assert.Nil(t, u.LastLogin)

	_, err = store.FindByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, user.ErrNotFound)

	require.NoError(t, store.UpdateLastLogin(ctx, id, time.Now()))
	u, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, u.LastLogin)

	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "tok", time.Now().Add(time.Hour)))
	ok, err := store.ValidateResetToken(ctx, "ada@school.test", "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.ValidateResetToken(ctx, "ada@school.test", "other")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpdatePassword(ctx, "ada@school.test", "new-hash"))
	require.NoError(t, store.ClearResetToken(ctx, "ada@school.test"))
	ok, err = store.ValidateResetToken(ctx, "ada@school.test", "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "once", time.Now().Add(time.Hour)))
	ok, err = store.ConsumeResetToken(ctx, "ada@school.test", "once")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.ConsumeResetToken(ctx, "ada@school.test", "once")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "stale", time.Now().Add(-time.Minute)))
	n, err := store.PurgeExpiredResetTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
