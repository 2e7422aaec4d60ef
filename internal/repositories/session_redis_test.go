package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velist/velist/internal/models"
)

func newRedisSessionStoreTest(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, "test"), mr
}

func testSession(id, userID string, ttl time.Duration) *models.Session {
	return &models.Session{
		ID:        id,
		UserID:    userID,
		IPAddress: "203.0.113.10",
		UserAgent: "go-test",
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestRedisSessionStore_CreateGetExists(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("s-1", "u-1", time.Hour)))

	ok, err := store.Exists(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "203.0.113.10", got.IPAddress)

	assert.True(t, mr.Exists("test:session:s-1"))
	members, err := mr.Members("test:user_sessions:u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, members)
}

func TestRedisSessionStore_RecordExpiresWithToken(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("s-1", "u-1", time.Hour)))
	mr.FastForward(61 * time.Minute)

	ok, err := store.Exists(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisSessionStore_IndexKeepsLongestTTL(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("long", "u-1", 30*24*time.Hour)))
	require.NoError(t, store.Create(ctx, testSession("short", "u-1", time.Hour)))

	assert.Greater(t, mr.TTL("test:user_sessions:u-1"), 24*time.Hour)
}

func TestRedisSessionStore_CreateRejectsExpired(t *testing.T) {
	store, _ := newRedisSessionStoreTest(t)

	err := store.Create(context.Background(), testSession("s-1", "u-1", -time.Minute))
	assert.Error(t, err)
}

func TestRedisSessionStore_DeleteIsIdempotent(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("s-1", "u-1", time.Hour)))
	require.NoError(t, store.Delete(ctx, "s-1"))
	require.NoError(t, store.Delete(ctx, "s-1"))

	ok, err := store.Exists(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:session:s-1"))
}

func TestRedisSessionStore_DeleteForUser(t *testing.T) {
	store, _ := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("a", "u-1", time.Hour)))
	require.NoError(t, store.Create(ctx, testSession("b", "u-1", time.Hour)))
	require.NoError(t, store.Create(ctx, testSession("c", "u-2", time.Hour)))

	n, err := store.DeleteForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for id, want := range map[string]bool{"a": false, "b": false, "c": true} {
		ok, err := store.Exists(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ok, id)
	}

	n, err = store.DeleteForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisSessionStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()
	store := NewRedisSessionStore(client, "")

	_, err = store.Exists(context.Background(), "s-1")
	assert.Error(t, err)
}
