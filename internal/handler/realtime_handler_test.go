package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tripsync/internal/realtime"
	"tripsync/internal/service"
	"tripsync/pkg/logger"
)

func newRealtimeServer(t *testing.T, hub *realtime.Hub) *httptest.Server {
	t.Helper()
	h := NewRealtimeHandler(hub, DefaultRealtimeConfig(), logger.Nop())
	r := chi.NewRouter()
	r.Get("/ws/rooms/{roomID}", h.Serve)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func dialRoom(t *testing.T, server *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rooms/" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForListeners(t *testing.T, hub *realtime.Hub, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Stats()[roomID] == n }, time.Second, 5*time.Millisecond)
}

func TestRealtimeHandler_ForwardsRoomEvents(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop(), 8)
	defer hub.Close()
	server := newRealtimeServer(t, hub)

	conn := dialRoom(t, server, "room-1")
	waitForListeners(t, hub, "room-1", 1)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, realtime.ChangeEvent{RoomID: "room-2", Table: realtime.TableSpots, Action: realtime.ActionInsert}))
	require.NoError(t, hub.Publish(ctx, realtime.ChangeEvent{RoomID: "room-1", Table: realtime.TableVotes, Action: realtime.ActionDelete, RowID: 8}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	event, err := realtime.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "room-1", event.RoomID)
	assert.Equal(t, realtime.TableVotes, event.Table)
	assert.Equal(t, int64(8), event.RowID)
}

func TestRealtimeHandler_ClientDisconnectReleasesSubscription(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop(), 8)
	defer hub.Close()
	server := newRealtimeServer(t, hub)

	conn := dialRoom(t, server, "room-1")
	waitForListeners(t, hub, "room-1", 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitForListeners(t, hub, "room-1", 0)
}

func TestRealtimeHandler_HubCloseEndsConnection(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop(), 8)
	server := newRealtimeServer(t, hub)

	conn := dialRoom(t, server, "room-1")
	waitForListeners(t, hub, "room-1", 1)
	require.NoError(t, hub.Close())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

type fakeHotels struct {
	keyword string
	result  service.HotelLookupResult
}

func (f *fakeHotels) Lookup(_ context.Context, keyword string) service.HotelLookupResult {
	f.keyword = keyword
	return f.result
}

func TestHotelHandler_Search(t *testing.T) {
	id := "74944"
	tests := []struct {
		name   string
		result service.HotelLookupResult
		want   string
	}{
		{name: "found", result: service.HotelLookupResult{ID: &id}, want: `{"id":"74944"}`},
		{name: "not found", result: service.HotelLookupResult{}, want: `{"id":null}`},
		{name: "missing keyword", result: service.HotelLookupResult{Error: service.HotelErrKeywordMissing}, want: `{"id":null,"error":"Keyword missing"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeHotels{result: tt.result}
			h := NewHotelHandler(fake, logger.Nop())

			rec := httptest.NewRecorder()
			h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search_hotel?keyword=Granvia", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Granvia", fake.keyword)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestHotelLookupResult_JSONShape(t *testing.T) {
	data, err := json.Marshal(service.HotelLookupResult{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":null}`, string(data))
}
