package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"tripsync/internal/realtime"
	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/logger"
)

// RealtimeConfig holds the websocket timing
type RealtimeConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// DefaultRealtimeConfig returns the websocket defaults. The ping interval
// must stay below the read timeout.
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
	}
}

// RealtimeHandler pushes a room's change events to browsers and terminal
// clients over a websocket
type RealtimeHandler struct {
	feed     realtime.Feed
	config   RealtimeConfig
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewRealtimeHandler creates a new realtime handler. A nil CheckOrigin
// accepts any origin; CORS does not apply to websocket upgrades.
func NewRealtimeHandler(feed realtime.Feed, config RealtimeConfig, logger *logger.Logger) *RealtimeHandler {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &RealtimeHandler{
		feed:   feed,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Serve handles GET /ws/rooms/{roomID}
func (h *RealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		respondError(w, r, h.logger, apperrors.NewValidationError("room id is required", nil))
		return
	}

	sub, err := h.feed.Subscribe(r.Context(), roomID)
	if err != nil {
		respondError(w, r, h.logger, apperrors.NewInternalError("failed to subscribe to room", err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		sub.Close()
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	log := h.logger.WithField("room_id", roomID)
	log.Debug("Realtime client connected")

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done, log)

	log.Debug("Realtime client disconnected")
}

// writePump forwards events until the subscription ends or the client goes
// away, pinging between events
func (h *RealtimeHandler) writePump(conn *websocket.Conn, sub realtime.Subscription, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			data, err := realtime.Encode(event)
			if err != nil {
				log.WithError(err).Error("Failed to encode change event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("Failed to write change event")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.WithError(err).Debug("Failed to send ping")
				return
			}

		case <-done:
			return
		}
	}
}

// readPump discards client frames and keeps the read deadline fresh on pongs.
// It closes done when the connection fails.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("Unexpected websocket close")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	}
}
