package itinerary

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tripsync/internal/domain"
	"tripsync/internal/session"
)

// Session tracks which room this client is looking at and under which name
// it joined. Names are remembered per room across restarts.
type Session struct {
	store  session.Store
	logger *zap.Logger

	mu    sync.RWMutex
	state domain.SessionState
}

// NewSession creates a session with no room selected
func NewSession(store session.Store, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{store: store, logger: logger}
}

// State returns a copy of the session state
func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UserName returns the joined display name, or "" when not joined
func (s *Session) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.Joined {
		return ""
	}
	return s.state.UserName
}

// SwitchRoom makes roomID current and restores the name remembered for it.
// The state reads as loading until the lookup finishes; an empty roomID
// leaves the session without a room.
func (s *Session) SwitchRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.state = domain.SessionState{RoomID: roomID, Loading: roomID != ""}
	s.mu.Unlock()

	if roomID == "" {
		return nil
	}

	name, err := s.store.UserName(ctx, roomID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.RoomID != roomID {
		// switched again while looking up
		return nil
	}
	s.state.Loading = false
	if err != nil {
		s.logger.Error("Failed to restore room session", zap.String("room_id", roomID), zap.Error(err))
		return fmt.Errorf("restore session for room %s: %w", roomID, err)
	}
	if name != "" {
		s.state.UserName = name
		s.state.Joined = true
		s.logger.Info("Restored room session", zap.String("room_id", roomID))
	}
	return nil
}

// Join records name for the current room and marks the session joined
func (s *Session) Join(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	roomID := s.State().RoomID
	if roomID == "" {
		return ErrNoRoom
	}

	if err := s.store.SetUserName(ctx, roomID, name); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.RoomID == roomID {
		s.state.UserName = name
		s.state.Joined = true
	}
	s.logger.Info("Joined room", zap.String("room_id", roomID))
	return nil
}

// Leave forgets the name for the current room and marks the session not
// joined
func (s *Session) Leave(ctx context.Context) error {
	roomID := s.State().RoomID
	if roomID == "" {
		return ErrNoRoom
	}

	if err := s.store.ClearUserName(ctx, roomID); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.RoomID == roomID {
		s.state.UserName = ""
		s.state.Joined = false
	}
	s.logger.Info("Left room", zap.String("room_id", roomID))
	return nil
}

// TermsAccepted reports whether the current terms version was accepted
func (s *Session) TermsAccepted(ctx context.Context) (bool, error) {
	return s.store.TermsAccepted(ctx, domain.TermsVersion)
}

// AcceptTerms records acceptance of the current terms version
func (s *Session) AcceptTerms(ctx context.Context) error {
	return s.store.AcceptTerms(ctx, domain.TermsVersion)
}
