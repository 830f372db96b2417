package itinerary

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"tripsync/internal/realtime"
)

// SubscriberState is the lifecycle of the room change subscription
type SubscriberState int32

const (
	Disconnected SubscriberState = iota
	Connecting
	Subscribed
)

func (s SubscriberState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Reloader re-fetches a room's full state
type Reloader interface {
	Reload(ctx context.Context, roomID string) error
}

// ReloaderFunc adapts a function to Reloader
type ReloaderFunc func(ctx context.Context, roomID string) error

// Reload calls f
func (f ReloaderFunc) Reload(ctx context.Context, roomID string) error {
	return f(ctx, roomID)
}

// Subscriber keeps at most one change subscription open, for the current
// room while the session has joined it, and reloads the room on every
// change event
type Subscriber struct {
	feed     realtime.Feed
	reloader Reloader
	logger   *zap.Logger

	mu     sync.Mutex
	roomID string
	sub    realtime.Subscription
	cancel context.CancelFunc
	done   chan struct{}

	state atomic.Int32
	gen   atomic.Uint64
}

// NewSubscriber creates a disconnected subscriber
func NewSubscriber(feed realtime.Feed, reloader Reloader, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{feed: feed, reloader: reloader, logger: logger}
}

// State returns the current subscription state
func (s *Subscriber) State() SubscriberState {
	return SubscriberState(s.state.Load())
}

// RoomID returns the room of the open subscription, if any
func (s *Subscriber) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Sync brings the subscription in line with the session: open for roomID when
// joined, closed otherwise. Any previous subscription is torn down before a
// new one opens, and the new one starts with a full reload. Calling Sync after
// the feed dropped reconnects.
func (s *Subscriber) Sync(ctx context.Context, roomID string, joined bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := roomID != "" && joined
	// a dropped feed leaves its subscription behind until the next Sync
	// replaces it
	if want && s.sub != nil && s.roomID == roomID && s.State() == Subscribed {
		return nil
	}

	s.teardownLocked()
	if !want {
		return nil
	}

	gen := s.gen.Load()
	s.state.Store(int32(Connecting))
	sub, err := s.feed.Subscribe(ctx, roomID)
	if err != nil {
		s.state.Store(int32(Disconnected))
		s.logger.Error("Failed to subscribe to room changes", zap.String("room_id", roomID), zap.Error(err))
		return fmt.Errorf("subscribe to room %s: %w", roomID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.roomID = roomID
	s.sub = sub
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state.Store(int32(Subscribed))

	s.logger.Info("Subscribed to room changes", zap.String("room_id", roomID))
	go s.run(runCtx, gen, roomID, sub, s.done)
	return nil
}

// Close tears down the open subscription, if any
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	return nil
}

func (s *Subscriber) teardownLocked() {
	if s.sub == nil {
		return
	}
	s.gen.Add(1)
	s.cancel()
	if err := s.sub.Close(); err != nil {
		s.logger.Warn("Failed to close room subscription", zap.String("room_id", s.roomID), zap.Error(err))
	}
	<-s.done

	s.logger.Info("Unsubscribed from room changes", zap.String("room_id", s.roomID))
	s.sub = nil
	s.cancel = nil
	s.done = nil
	s.roomID = ""
	s.state.Store(int32(Disconnected))
}

func (s *Subscriber) run(ctx context.Context, gen uint64, roomID string, sub realtime.Subscription, done chan struct{}) {
	defer close(done)

	s.reload(ctx, roomID)

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if s.gen.Load() == gen {
					s.state.Store(int32(Disconnected))
					s.logger.Warn("Room change feed closed", zap.String("room_id", roomID))
				}
				return
			}
			if ev.RoomID != "" && ev.RoomID != roomID {
				continue
			}
			// events already queued are covered by the same reload
			drained := drain(events)
			s.logger.Debug("Room changed",
				zap.String("room_id", roomID),
				zap.String("table", ev.Table),
				zap.String("action", string(ev.Action)),
				zap.Int("coalesced", drained))
			s.reload(ctx, roomID)
		}
	}
}

func (s *Subscriber) reload(ctx context.Context, roomID string) {
	if err := s.reloader.Reload(ctx, roomID); err != nil && ctx.Err() == nil {
		s.logger.Error("Failed to reload room", zap.String("room_id", roomID), zap.Error(err))
	}
}

func drain(events <-chan realtime.ChangeEvent) int {
	n := 0
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
