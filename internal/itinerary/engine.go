package itinerary

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tripsync/internal/realtime"
	"tripsync/internal/session"
)

// Engine wires a client's session, spot store and change subscription
// together for whichever room is current
type Engine struct {
	backend Backend
	session *Session
	sub     *Subscriber
	logger  *zap.Logger

	mu        sync.RWMutex
	store     *Store
	listeners []func(Snapshot)
}

// NewEngine creates an engine with no room open
func NewEngine(backend Backend, feed realtime.Feed, sessions session.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		backend: backend,
		session: NewSession(sessions, logger),
		logger:  logger,
	}
	e.sub = NewSubscriber(feed, ReloaderFunc(e.Reload), logger)
	return e
}

// Session returns the client's room session
func (e *Engine) Session() *Session {
	return e.session
}

// Store returns the store of the current room, or nil before OpenRoom
func (e *Engine) Store() *Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

// SubscriberState reports the change subscription state
func (e *Engine) SubscriberState() SubscriberState {
	return e.sub.State()
}

// OnChange registers fn for snapshots of whichever room is current
func (e *Engine) OnChange(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// OpenRoom switches to roomID: restores the session, starts a fresh store and
// subscribes if the session is already joined there
func (e *Engine) OpenRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrNoRoom
	}

	// a fresh store needs a fresh subscription and its initial load
	if err := e.sub.Close(); err != nil {
		return err
	}

	store := NewStore(roomID, e.backend, e.session, e.logger)
	store.OnChange(e.forward)

	e.mu.Lock()
	e.store = store
	e.mu.Unlock()

	if err := e.session.SwitchRoom(ctx, roomID); err != nil {
		return err
	}
	return e.syncSubscription(ctx)
}

// Join joins the current room under name and starts following its changes
func (e *Engine) Join(ctx context.Context, name string) error {
	if err := e.session.Join(ctx, name); err != nil {
		return err
	}
	return e.syncSubscription(ctx)
}

// Leave leaves the current room and stops following its changes
func (e *Engine) Leave(ctx context.Context) error {
	if err := e.session.Leave(ctx); err != nil {
		return err
	}
	return e.syncSubscription(ctx)
}

// Reconnect reopens the change subscription when the session is joined but
// the feed dropped. It does nothing otherwise.
func (e *Engine) Reconnect(ctx context.Context) error {
	if e.sub.State() != Disconnected || !e.session.State().Joined {
		return nil
	}
	e.logger.Info("Reconnecting to room changes", zap.String("room_id", e.session.State().RoomID))
	return e.syncSubscription(ctx)
}

// Reload loads roomID if it is still the current room
func (e *Engine) Reload(ctx context.Context, roomID string) error {
	store := e.Store()
	if store == nil || store.RoomID() != roomID {
		return nil
	}
	return store.Load(ctx)
}

// Close stops following changes
func (e *Engine) Close() error {
	return e.sub.Close()
}

func (e *Engine) syncSubscription(ctx context.Context) error {
	state := e.session.State()
	if err := e.sub.Sync(ctx, state.RoomID, state.Joined); err != nil {
		return err
	}
	if !state.Joined && state.RoomID != "" {
		// not subscribed, but the room is still browsable
		if err := e.Store().Load(ctx); err != nil {
			return fmt.Errorf("load room %s: %w", state.RoomID, err)
		}
	}
	return nil
}

func (e *Engine) forward(snap Snapshot) {
	e.mu.RLock()
	current := e.store != nil && e.store.RoomID() == snap.RoomID
	listeners := make([]func(Snapshot), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	if !current {
		return
	}
	for _, fn := range listeners {
		fn(snap)
	}
}
