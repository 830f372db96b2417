package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tripsync/internal/realtime"
	"tripsync/pkg/logger"
)

// pongWait bounds the silence tolerated from the server, whose pings arrive
// well within it
const pongWait = 75 * time.Second

// Feed opens a websocket per room subscription
type Feed struct {
	wsURL  string
	dialer *websocket.Dialer
	logger *logger.Logger
}

// NewFeed creates a feed for the server at baseURL (http or https)
func NewFeed(baseURL string, logger *logger.Logger) (*Feed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}

	return &Feed{
		wsURL: u.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

// Subscribe dials the room's websocket. The subscription's channel closes
// when the connection drops.
func (f *Feed) Subscribe(ctx context.Context, roomID string) (realtime.Subscription, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.wsURL+"/ws/rooms/"+url.PathEscape(roomID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open change feed: %w", err)
	}

	sub := &feedSubscription{
		conn:   conn,
		events: make(chan realtime.ChangeEvent, 16),
		done:   make(chan struct{}),
		logger: f.logger.WithField("room_id", roomID),
	}
	go sub.readLoop()
	return sub, nil
}

type feedSubscription struct {
	conn   *websocket.Conn
	events chan realtime.ChangeEvent
	done   chan struct{}
	logger *logger.Logger

	closeOnce sync.Once
}

func (s *feedSubscription) Events() <-chan realtime.ChangeEvent {
	return s.events
}

// Close sends a close frame and ends the read loop
func (s *feedSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *feedSubscription) readLoop() {
	defer close(s.events)

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(appData string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.WithError(err).Warn("Change feed connection lost")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		event, err := realtime.Decode(data)
		if err != nil {
			s.logger.WithError(err).Warn("Invalid change event")
			continue
		}

		select {
		case s.events <- event:
		case <-s.done:
			return
		default:
			// the reader only needs one pending event to reload
			s.logger.Debug("Change event dropped, reload already pending")
		}
	}
}
