package itinerary

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tripsync/internal/domain"
	"tripsync/internal/realtime"
	"tripsync/internal/session"
)

func newTestEngine(t *testing.T, backend *memBackend, hub *realtime.Hub) *Engine {
	t.Helper()
	sessions, err := session.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	engine := NewEngine(backend, hub, sessions, zap.NewNop())
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEngine_TwoClientsConverge(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop(), 16)
	defer hub.Close()
	backend := newMemBackend(hub)
	backend.seed(domain.Spot{RoomID: "room", Name: "A", Order: 0})
	ctx := context.Background()

	client1 := newTestEngine(t, backend, hub)
	client2 := newTestEngine(t, backend, hub)

	for name, engine := range map[string]*Engine{"aki": client1, "ben": client2} {
		require.NoError(t, engine.OpenRoom(ctx, "room"))
		require.NoError(t, engine.Join(ctx, name))
		assert.Equal(t, Subscribed, engine.SubscriberState())
	}

	x, err := client1.Store().Add(ctx, domain.Candidate{Name: "X"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, sp := range client2.Store().Spots() {
			if sp.ID == x.ID {
				return sp.Order == x.Order && sp.Name == "X" && sp.AddedBy == "aki"
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_BrowsingWithoutJoiningLoadsOnce(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop(), 16)
	defer hub.Close()
	backend := newMemBackend(hub)
	backend.seed(domain.Spot{RoomID: "room", Name: "A"})

	engine := newTestEngine(t, backend, hub)
	require.NoError(t, engine.OpenRoom(context.Background(), "room"))

	assert.Equal(t, Disconnected, engine.SubscriberState())
	assert.Equal(t, []string{"A"}, spotNames(engine.Store().Spots()))
	assert.Empty(t, hub.Stats())
}

func TestEngine_RestoresJoinedSessionPerRoom(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop(), 16)
	defer hub.Close()
	backend := newMemBackend(hub)
	ctx := context.Background()

	sessions, err := session.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	engine := NewEngine(backend, hub, sessions, zap.NewNop())
	defer engine.Close()

	require.NoError(t, engine.OpenRoom(ctx, "room-1"))
	require.NoError(t, engine.Join(ctx, "aki"))

	require.NoError(t, engine.OpenRoom(ctx, "room-2"))
	assert.False(t, engine.Session().State().Joined)
	assert.Empty(t, hub.Stats())

	require.NoError(t, engine.OpenRoom(ctx, "room-1"))
	state := engine.Session().State()
	assert.True(t, state.Joined)
	assert.Equal(t, "aki", state.UserName)
	assert.Equal(t, map[string]int{"room-1": 1}, hub.Stats())

	require.NoError(t, engine.Leave(ctx))
	assert.Equal(t, Disconnected, engine.SubscriberState())
	assert.Empty(t, hub.Stats())
}

func TestEngine_SnapshotsOfOldRoomAreNotForwarded(t *testing.T) {
	backend := newMemBackend(nil)
	hub := realtime.NewHub(zap.NewNop(), 16)
	defer hub.Close()
	engine := newTestEngine(t, backend, hub)
	ctx := context.Background()

	var rooms atomic.Value
	engine.OnChange(func(s Snapshot) { rooms.Store(s.RoomID) })

	require.NoError(t, engine.OpenRoom(ctx, "room-1"))
	old := engine.Store()
	require.NoError(t, engine.OpenRoom(ctx, "room-2"))
	assert.Equal(t, "room-2", rooms.Load())

	require.NoError(t, old.Load(ctx))
	assert.Equal(t, "room-2", rooms.Load())
}

func TestEngine_OpenRoomRequiresID(t *testing.T) {
	engine := newTestEngine(t, newMemBackend(nil), realtime.NewHub(nil, 1))
	assert.ErrorIs(t, engine.OpenRoom(context.Background(), ""), ErrNoRoom)
}


func TestEngine_ReconnectAfterFeedDrop(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop(), 16)
	defer hub.Close()
	backend := newMemBackend(hub)
	feed := &countingFeed{hub: hub}
	sessions, err := session.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	engine := NewEngine(backend, feed, sessions, zap.NewNop())
	defer engine.Close()
	ctx := context.Background()

	// nothing to do before joining
	require.NoError(t, engine.OpenRoom(ctx, "room"))
	require.NoError(t, engine.Reconnect(ctx))
	assert.Zero(t, feed.subscribeCalls())

	require.NoError(t, engine.Join(ctx, "aki"))
	require.Equal(t, Subscribed, engine.SubscriberState())

	// a healthy subscription is left alone
	require.NoError(t, engine.Reconnect(ctx))
	assert.Equal(t, 1, feed.subscribeCalls())

	feed.drop()
	require.Eventually(t, func() bool { return engine.SubscriberState() == Disconnected }, time.Second, 5*time.Millisecond)

	require.NoError(t, engine.Reconnect(ctx))
	assert.Equal(t, Subscribed, engine.SubscriberState())
	assert.Equal(t, 2, feed.subscribeCalls())
}
