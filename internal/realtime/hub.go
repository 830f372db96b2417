package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrHubClosed is returned when subscribing to a closed hub
var ErrHubClosed = errors.New("realtime hub closed")

// Hub fans change events out to in-process subscribers, keyed by room. It is
// both a Feed and a Publisher: the database drivers publish into it and the
// websocket handler subscribes from it.
type Hub struct {
	logger     *zap.Logger
	bufferSize int

	mu     sync.RWMutex
	rooms  map[string]map[string]*hubSubscription
	closed bool
}

// NewHub creates a hub whose subscriptions buffer up to bufferSize events
func NewHub(logger *zap.Logger, bufferSize int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		logger:     logger,
		bufferSize: bufferSize,
		rooms:      make(map[string]map[string]*hubSubscription),
	}
}

// Subscribe registers a subscription for roomID
func (h *Hub) Subscribe(_ context.Context, roomID string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &hubSubscription{
		id:     uuid.NewString(),
		roomID: roomID,
		events: make(chan ChangeEvent, h.bufferSize),
		hub:    h,
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*hubSubscription)
	}
	h.rooms[roomID][sub.id] = sub

	h.logger.Debug("Subscription registered",
		zap.String("room_id", roomID),
		zap.String("subscription_id", sub.id),
		zap.Int("room_subscriptions", len(h.rooms[roomID])))
	return sub, nil
}

// Publish delivers event to every subscription of its room. A resync event
// without a room goes to every subscription. A full buffer drops the event,
// since the receiver already has a pending reload signal queued.
func (h *Hub) Publish(_ context.Context, event ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}

	if event.Action == ActionResync && event.RoomID == "" {
		for _, subs := range h.rooms {
			h.deliver(subs, event)
		}
		return nil
	}
	h.deliver(h.rooms[event.RoomID], event)
	return nil
}

// Stats returns the number of subscriptions per room
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[string]int, len(h.rooms))
	for roomID, subs := range h.rooms {
		stats[roomID] = len(subs)
	}
	return stats
}

// Close ends every subscription
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for roomID, subs := range h.rooms {
		for id, sub := range subs {
			sub.closeOnce.Do(func() { close(sub.events) })
			delete(subs, id)
		}
		delete(h.rooms, roomID)
	}
	return nil
}

func (h *Hub) deliver(subs map[string]*hubSubscription, event ChangeEvent) {
	for _, sub := range subs {
		select {
		case sub.events <- event:
		default:
			h.logger.Debug("Subscription buffer full, dropping event",
				zap.String("room_id", sub.roomID),
				zap.String("subscription_id", sub.id))
		}
	}
}

func (h *Hub) unregister(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[sub.roomID]; ok {
		if _, ok := subs[sub.id]; ok {
			delete(subs, sub.id)
			sub.closeOnce.Do(func() { close(sub.events) })
		}
		if len(subs) == 0 {
			delete(h.rooms, sub.roomID)
		}
	}
}

type hubSubscription struct {
	id        string
	roomID    string
	events    chan ChangeEvent
	hub       *Hub
	closeOnce sync.Once
}

func (s *hubSubscription) Events() <-chan ChangeEvent {
	return s.events
}

func (s *hubSubscription) Close() error {
	s.hub.unregister(s)
	return nil
}
