package itinerary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tripsync/internal/session"
)

func newTestSession(t *testing.T) (*Session, session.Store) {
	t.Helper()
	store, err := session.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return NewSession(store, zap.NewNop()), store
}

func TestSession_SwitchRoomRestoresName(t *testing.T) {
	s, store := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, store.SetUserName(ctx, "room-1", "aki"))

	require.NoError(t, s.SwitchRoom(ctx, "room-1"))
	state := s.State()
	assert.Equal(t, "room-1", state.RoomID)
	assert.Equal(t, "aki", state.UserName)
	assert.True(t, state.Joined)
	assert.False(t, state.Loading)
	assert.Equal(t, "aki", s.UserName())

	require.NoError(t, s.SwitchRoom(ctx, "room-2"))
	state = s.State()
	assert.False(t, state.Joined)
	assert.Empty(t, state.UserName)
	assert.Empty(t, s.UserName())
}

func TestSession_JoinAndLeave(t *testing.T) {
	s, store := newTestSession(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Join(ctx, "aki"), ErrNoRoom)

	require.NoError(t, s.SwitchRoom(ctx, "room-1"))
	assert.ErrorIs(t, s.Join(ctx, "   "), ErrEmptyName)

	require.NoError(t, s.Join(ctx, "  aki "))
	assert.Equal(t, "aki", s.UserName())
	persisted, err := store.UserName(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "aki", persisted)

	require.NoError(t, s.Leave(ctx))
	assert.False(t, s.State().Joined)
	persisted, err = store.UserName(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestSession_SwitchToNoRoom(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.SwitchRoom(context.Background(), ""))
	assert.Equal(t, "", s.State().RoomID)
	assert.False(t, s.State().Loading)
	assert.ErrorIs(t, s.Leave(context.Background()), ErrNoRoom)
}

func TestSession_Terms(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	ok, err := s.TermsAccepted(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AcceptTerms(ctx))
	ok, err = s.TermsAccepted(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
