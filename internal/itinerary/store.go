package itinerary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tripsync/internal/domain"
)

// Snapshot is a point-in-time copy of a room's spots and votes. Token changes
// every time a full load is applied.
type Snapshot struct {
	RoomID string
	Spots  []domain.Spot
	Votes  []domain.Vote
	Token  uint64
}

// Store holds the authoritative local copy of one room's spots. Mutations
// apply optimistically where the recovery path allows it, and full loads
// replace the snapshot atomically.
type Store struct {
	roomID   string
	backend  Backend
	identity Identity
	logger   *zap.Logger

	mu         sync.Mutex
	spots      []domain.Spot
	votes      []domain.Vote
	token      uint64
	loadSeq    uint64
	appliedSeq uint64
	listeners  []func(Snapshot)
}

// NewStore creates an empty store for roomID. identity may be nil, in which
// case adds are attributed to the guest name and votes are rejected.
func NewStore(roomID string, backend Backend, identity Identity, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		roomID:   roomID,
		backend:  backend,
		identity: identity,
		logger:   logger.With(zap.String("room_id", roomID)),
	}
}

// RoomID returns the room the store is bound to
func (s *Store) RoomID() string {
	return s.roomID
}

// OnChange registers fn to receive every new snapshot. fn runs on the
// goroutine that changed the store and must not call back into it
// synchronously.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Spots returns a copy of the current spot list in display order
func (s *Store) Spots() []domain.Spot {
	return s.Snapshot().Spots
}

// Load fetches every spot and vote of the room and replaces the snapshot.
// A load that finishes after a newer one has already been applied is
// discarded.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	spots, err := s.backend.ListSpots(ctx, s.roomID)
	if err != nil {
		s.logger.Error("Failed to load spots", zap.Error(err))
		return fmt.Errorf("load spots: %w", err)
	}
	votes, err := s.backend.ListVotes(ctx, s.roomID)
	if err != nil {
		s.logger.Error("Failed to load votes", zap.Error(err))
		return fmt.Errorf("load votes: %w", err)
	}
	domain.SortSpots(spots)

	s.mu.Lock()
	if seq <= s.appliedSeq {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale load", zap.Uint64("seq", seq))
		return nil
	}
	s.appliedSeq = seq
	s.token++
	s.spots = spots
	s.votes = votes
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("Loaded spots", zap.Int("spots", len(spots)), zap.Int("votes", len(votes)))
	s.notify(snap)
	return nil
}

// Add appends a provisional spot built from c, persists it and swaps the
// provisional record for the server's. When a full load completed while the
// insert was in flight the provisional record is dropped instead, since the
// load already reflects the server state. On failure the provisional record
// is rolled back.
func (s *Store) Add(ctx context.Context, c domain.Candidate, selected *domain.Candidate) (domain.Spot, error) {
	s.mu.Lock()
	spot := domain.NewSpot(s.roomID, c, selected, len(s.spots), s.userName())
	spot.LocalKey = uuid.NewString()
	token := s.token
	s.spots = append(s.spots, spot)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	saved, err := s.backend.InsertSpot(ctx, spot)

	s.mu.Lock()
	idx := s.indexOfLocalKey(spot.LocalKey)
	switch {
	case err != nil:
		if idx >= 0 {
			s.spots = removeAt(s.spots, idx)
		}
	case s.token != token || s.indexOfID(saved.ID) >= 0:
		if idx >= 0 {
			s.spots = removeAt(s.spots, idx)
		}
	case idx >= 0:
		s.spots[idx] = saved
		domain.SortSpots(s.spots)
	default:
		s.spots = append(s.spots, saved)
		domain.SortSpots(s.spots)
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	if err != nil {
		s.logger.Error("Failed to add spot", zap.String("name", spot.Name), zap.Error(err))
		return domain.Spot{}, &MutationError{Op: OpAdd, Recovery: RecoverySurface, Err: err}
	}
	s.logger.Info("Spot added", zap.Int64("spot_id", saved.ID), zap.String("name", saved.Name))
	return saved, nil
}

// Remove deletes the spot identified by ref, by id when it has one and by
// name otherwise, then drops every matching local record. A failed delete
// triggers a corrective reload.
func (s *Store) Remove(ctx context.Context, ref domain.SpotRef) error {
	ref.Name = strings.TrimSpace(ref.Name)
	if !ref.ByID() && ref.Name == "" {
		return &MutationError{Op: OpRemove, Recovery: RecoverySurface, Err: ErrEmptyRef}
	}

	if err := s.backend.DeleteSpot(ctx, s.roomID, ref); err != nil {
		s.logger.Error("Failed to remove spot",
			zap.Int64("spot_id", ref.ID),
			zap.String("name", ref.Name),
			zap.Error(err))
		return s.reloadAfter(ctx, OpRemove, err)
	}

	s.mu.Lock()
	kept := s.spots[:0:0]
	for _, sp := range s.spots {
		if !ref.Matches(sp) {
			kept = append(kept, sp)
		}
	}
	s.spots = kept
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// UpdateStatus sets a spot's status and day locally, then persists the
// change. A failed persist triggers a corrective reload.
func (s *Store) UpdateStatus(ctx context.Context, spot domain.Spot, status domain.SpotStatus, day int) error {
	if !status.Valid() {
		return &MutationError{Op: OpUpdateStatus, Recovery: RecoverySurface, Err: domain.ErrInvalidStatus}
	}
	if !spot.Persisted() {
		return &MutationError{Op: OpUpdateStatus, Recovery: RecoverySurface, Err: ErrNotPersisted}
	}
	if day < 0 {
		day = 0
	}

	s.mu.Lock()
	if idx := s.indexOfID(spot.ID); idx >= 0 {
		s.spots[idx].Status = status
		s.spots[idx].Day = day
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	update := domain.StatusUpdate{Status: status, Day: day}
	if err := s.backend.UpdateSpotStatus(ctx, spot.ID, update); err != nil {
		s.logger.Error("Failed to update spot status",
			zap.Int64("spot_id", spot.ID),
			zap.String("status", string(status)),
			zap.Error(err))
		return s.reloadAfter(ctx, OpUpdateStatus, err)
	}
	return nil
}

// ReplaceAll swaps the local list for spots, typically a reordering. The new
// order stays local until PersistOrder is called.
func (s *Store) ReplaceAll(spots []domain.Spot) {
	next := make([]domain.Spot, len(spots))
	for i, sp := range spots {
		next[i] = sp.Clone()
	}

	s.mu.Lock()
	s.spots = next
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// PersistOrder writes the current local order to the backend, numbering
// persisted spots by their position
func (s *Store) PersistOrder(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.spots))
	for _, sp := range s.spots {
		if sp.Persisted() {
			ids = append(ids, sp.ID)
		}
	}
	s.mu.Unlock()

	if err := s.backend.UpdateSpotOrder(ctx, s.roomID, ids); err != nil {
		s.logger.Error("Failed to persist order", zap.Error(err))
		return s.reloadAfter(ctx, OpPersistOrder, err)
	}

	s.mu.Lock()
	pos := make(map[int64]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	for i := range s.spots {
		if p, ok := pos[s.spots[i].ID]; ok {
			s.spots[i].Order = p
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// ToggleVote flips the session user's like on a spot. The local vote list
// and counter change immediately; the backend's count wins once it answers.
func (s *Store) ToggleVote(ctx context.Context, spotID int64) (domain.VoteToggleResult, error) {
	userName := ""
	if s.identity != nil {
		userName = s.identity.UserName()
	}
	if userName == "" {
		return domain.VoteToggleResult{}, &MutationError{Op: OpToggleVote, Recovery: RecoverySurface, Err: ErrNoIdentity}
	}

	s.mu.Lock()
	if _, found := domain.FindVote(s.votes, spotID, userName); found {
		kept := s.votes[:0:0]
		for _, v := range s.votes {
			if !(v.SpotID == spotID && v.UserName == userName) {
				kept = append(kept, v)
			}
		}
		s.votes = kept
		s.adjustVotesLocked(spotID, -1)
	} else {
		s.votes = append(s.votes, domain.Vote{
			RoomID:   s.roomID,
			SpotID:   spotID,
			UserName: userName,
			VoteType: domain.VoteLike,
		})
		s.adjustVotesLocked(spotID, 1)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	result, err := s.backend.ToggleVote(ctx, s.roomID, domain.VoteToggleRequest{SpotID: spotID, UserName: userName})
	if err != nil {
		s.logger.Error("Failed to toggle vote", zap.Int64("spot_id", spotID), zap.Error(err))
		return domain.VoteToggleResult{}, s.reloadAfter(ctx, OpToggleVote, err)
	}

	s.mu.Lock()
	if idx := s.indexOfID(spotID); idx >= 0 {
		s.spots[idx].Votes = result.Votes
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return result, nil
}

func (s *Store) reloadAfter(ctx context.Context, op Op, cause error) error {
	if loadErr := s.Load(ctx); loadErr != nil {
		return &MutationError{Op: op, Recovery: RecoveryReload, Err: errors.Join(cause, loadErr)}
	}
	return &MutationError{Op: op, Recovery: RecoveryReload, Err: cause}
}

func (s *Store) adjustVotesLocked(spotID int64, delta int) {
	idx := s.indexOfID(spotID)
	if idx < 0 {
		return
	}
	s.spots[idx].Votes += delta
	if s.spots[idx].Votes < 0 {
		s.spots[idx].Votes = 0
	}
}

func (s *Store) userName() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.UserName()
}

func (s *Store) indexOfID(id int64) int {
	if id == 0 {
		return -1
	}
	for i, sp := range s.spots {
		if sp.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfLocalKey(key string) int {
	for i, sp := range s.spots {
		if sp.LocalKey == key {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() Snapshot {
	spots := make([]domain.Spot, len(s.spots))
	for i, sp := range s.spots {
		spots[i] = sp.Clone()
	}
	votes := make([]domain.Vote, len(s.votes))
	copy(votes, s.votes)
	return Snapshot{RoomID: s.roomID, Spots: spots, Votes: votes, Token: s.token}
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	listeners := make([]func(Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func removeAt(spots []domain.Spot, idx int) []domain.Spot {
	out := make([]domain.Spot, 0, len(spots)-1)
	out = append(out, spots[:idx]...)
	return append(out, spots[idx+1:]...)
}
