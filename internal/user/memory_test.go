package user

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateAndFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	u := NewUser("u-1", "Ada", "Ada@School.test", "hash", RoleStudent)
	require.NoError(t, store.Create(ctx, u))
	assert.False(t, u.CreatedAt.IsZero())

	got, err := store.FindByEmail(ctx, "ADA@school.test")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)

	got.Name = "mutated"
	again, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name, "returned users must be copies")

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, NewUser("u-1", "Ada", "ada@school.test", "hash", RoleStudent)))
	err := store.Create(ctx, NewUser("u-2", "Other", " ADA@school.test", "hash", RoleTeacher))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemoryStoreResetTokens(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Create(ctx, NewUser("u-1", "Ada", "ada@school.test", "hash", RoleStudent)))

	// unknown email is a silent no-op
	require.NoError(t, store.StoreResetToken(ctx, "ghost@school.test", "tok", now.Add(time.Hour)))
	ok, err := store.ValidateResetToken(ctx, "ghost@school.test", "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "first", now.Add(time.Hour)))
	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "second", now.Add(time.Hour)))

	ok, _ = store.ValidateResetToken(ctx, "ada@school.test", "first")
	assert.False(t, ok, "a newer token supersedes the old one")
	ok, _ = store.ValidateResetToken(ctx, "ada@school.test", "second")
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	ok, _ = store.ValidateResetToken(ctx, "ada@school.test", "second")
	assert.False(t, ok)

	n, err := store.PurgeExpiredResetTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "third", now.Add(time.Hour)))
	require.NoError(t, store.ClearResetToken(ctx, "ada@school.test"))
	ok, _ = store.ValidateResetToken(ctx, "ada@school.test", "third")
	assert.False(t, ok)
}

func TestMemoryStoreConsumeResetToken(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Create(ctx, NewUser("u-1", "Ada", "ada@school.test", "hash", RoleStudent)))
	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "tok", now.Add(time.Hour)))

	ok, err := store.ConsumeResetToken(ctx, "ada@school.test", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// concurrent consumers of one token: exactly one wins
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.ConsumeResetToken(ctx, "ADA@school.test", "tok"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	ok, _ = store.ValidateResetToken(ctx, "ada@school.test", "tok")
	assert.False(t, ok)

	require.NoError(t, store.StoreResetToken(ctx, "ada@school.test", "late", now.Add(time.Minute)))
	now = now.Add(time.Minute)
	ok, _ = store.ConsumeResetToken(ctx, "ada@school.test", "late")
	assert.False(t, ok, "expired tokens cannot be consumed")
}

func TestMemoryStoreAdminMutations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, NewUser("u-1", "Ada", "ada@school.test", "hash", RoleStudent)))

	require.NoError(t, store.SetRole("u-1", RoleAdmin))
	require.NoError(t, store.SetActive("u-1", false))
	require.NoError(t, store.UpdatePassword(ctx, "ada@school.test", "new-hash"))
	at := time.Now()
	require.NoError(t, store.UpdateLastLogin(ctx, "u-1", at))

	u, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)
	assert.False(t, u.IsActive)
	assert.Equal(t, "new-hash", u.PasswordHash)
	require.NotNil(t, u.LastLogin)
	assert.True(t, at.Equal(*u.LastLogin))

	assert.ErrorIs(t, store.SetRole("missing", RoleAdmin), ErrNotFound)
	assert.ErrorIs(t, store.UpdateLastLogin(ctx, "missing", at), ErrNotFound)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("  Teacher ")
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, r)

	_, err = ParseRole("principal")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
