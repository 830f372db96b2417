package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tripsync/pkg/redis"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	redisStore, err := NewRedisStore(client, "client-1")
	require.NoError(t, err)

	return map[string]Store{"file": fileStore, "redis": redisStore}
}

func TestStore_RoomUserName(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := store.UserName(ctx, "room-1")
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, store.SetUserName(ctx, "room-1", "aki"))
			require.NoError(t, store.SetUserName(ctx, "room-2", "ben"))

			got, err = store.UserName(ctx, "room-1")
			require.NoError(t, err)
			assert.Equal(t, "aki", got)

			require.NoError(t, store.ClearUserName(ctx, "room-1"))
			got, err = store.UserName(ctx, "room-1")
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = store.UserName(ctx, "room-2")
			require.NoError(t, err)
			assert.Equal(t, "ben", got)
		})
	}
}

func TestStore_TermsAreVersioned(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := store.TermsAccepted(ctx, "v1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.AcceptTerms(ctx, "v1"))

			ok, err = store.TermsAccepted(ctx, "v1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.TermsAccepted(ctx, "v2")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, first.SetUserName(ctx, "room-1", "aki"))

	second, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	got, err := second.UserName(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "aki", got)
}

func TestFileStore_CorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0o600))

	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	got, err := store.UserName(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.SetUserName(context.Background(), "room-1", "aki"))
}

func TestNewRedisStore_RequiresClientID(t *testing.T) {
	_, err := NewRedisStore(nil, "")
	assert.Error(t, err)
}
