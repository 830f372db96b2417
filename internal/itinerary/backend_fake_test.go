package itinerary

import (
	"context"
	"sync"
	"time"

	"tripsync/internal/domain"
	"tripsync/internal/realtime"
)

// memBackend is an in-memory row store that emits change events into a hub
// the way the database triggers do
type memBackend struct {
	mu         sync.Mutex
	nextSpotID int64
	nextVoteID int64
	spots      map[int64]domain.Spot
	votes      []domain.Vote
	listCalls  int

	hub *realtime.Hub

	failInsert error
	failDelete error
	failStatus error
	failOrder  error
	failVote   error

	// beforeInsert and beforeList run outside the lock, letting tests hold a
	// call in flight
	beforeInsert func()
	beforeList   func(call int)
}

func newMemBackend(hub *realtime.Hub) *memBackend {
	return &memBackend{spots: make(map[int64]domain.Spot), hub: hub}
}

func (m *memBackend) seed(spots ...domain.Spot) []domain.Spot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Spot, 0, len(spots))
	for _, sp := range spots {
		m.nextSpotID++
		sp.ID = m.nextSpotID
		m.spots[sp.ID] = sp
		out = append(out, sp)
	}
	return out
}

func (m *memBackend) roomSpots(roomID string) []domain.Spot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomSpotsLocked(roomID)
}

func (m *memBackend) roomSpotsLocked(roomID string) []domain.Spot {
	var out []domain.Spot
	for _, sp := range m.spots {
		if sp.RoomID == roomID {
			out = append(out, sp)
		}
	}
	domain.SortSpots(out)
	return out
}

func (m *memBackend) emit(roomID, table string, action realtime.Action, rowID int64) {
	if m.hub == nil {
		return
	}
	_ = m.hub.Publish(context.Background(), realtime.ChangeEvent{
		RoomID: roomID,
		Table:  table,
		Action: action,
		RowID:  rowID,
		At:     time.Now(),
	})
}

func (m *memBackend) ListSpots(_ context.Context, roomID string) ([]domain.Spot, error) {
	m.mu.Lock()
	m.listCalls++
	call := m.listCalls
	hook := m.beforeList
	m.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return m.roomSpots(roomID), nil
}

func (m *memBackend) ListVotes(_ context.Context, roomID string) ([]domain.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Vote
	for _, v := range m.votes {
		if v.RoomID == roomID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memBackend) InsertSpot(_ context.Context, spot domain.Spot) (domain.Spot, error) {
	if m.beforeInsert != nil {
		m.beforeInsert()
	}
	m.mu.Lock()
	if m.failInsert != nil {
		m.mu.Unlock()
		return domain.Spot{}, m.failInsert
	}
	m.nextSpotID++
	spot.ID = m.nextSpotID
	spot.LocalKey = ""
	spot.CreatedAt = time.Now().UTC()
	m.spots[spot.ID] = spot
	m.mu.Unlock()

	m.emit(spot.RoomID, realtime.TableSpots, realtime.ActionInsert, spot.ID)
	return spot, nil
}

func (m *memBackend) DeleteSpot(_ context.Context, roomID string, ref domain.SpotRef) error {
	m.mu.Lock()
	if m.failDelete != nil {
		m.mu.Unlock()
		return m.failDelete
	}
	for id, sp := range m.spots {
		if ref.ByID() && id == ref.ID {
			delete(m.spots, id)
		}
		if !ref.ByID() && sp.RoomID == roomID && sp.Name == ref.Name {
			delete(m.spots, id)
		}
	}
	m.mu.Unlock()

	m.emit(roomID, realtime.TableSpots, realtime.ActionDelete, ref.ID)
	return nil
}

func (m *memBackend) UpdateSpotStatus(_ context.Context, spotID int64, update domain.StatusUpdate) error {
	m.mu.Lock()
	if m.failStatus != nil {
		m.mu.Unlock()
		return m.failStatus
	}
	sp, ok := m.spots[spotID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrSpotNotFound
	}
	sp.Status = update.Status
	sp.Day = update.Day
	m.spots[spotID] = sp
	m.mu.Unlock()

	m.emit(sp.RoomID, realtime.TableSpots, realtime.ActionUpdate, spotID)
	return nil
}

func (m *memBackend) UpdateSpotOrder(_ context.Context, roomID string, spotIDs []int64) error {
	m.mu.Lock()
	if m.failOrder != nil {
		m.mu.Unlock()
		return m.failOrder
	}
	for i, id := range spotIDs {
		if sp, ok := m.spots[id]; ok && sp.RoomID == roomID {
			sp.Order = i
			m.spots[id] = sp
		}
	}
	m.mu.Unlock()

	m.emit(roomID, realtime.TableSpots, realtime.ActionUpdate, 0)
	return nil
}

func (m *memBackend) ToggleVote(_ context.Context, roomID string, req domain.VoteToggleRequest) (domain.VoteToggleResult, error) {
	m.mu.Lock()
	if m.failVote != nil {
		m.mu.Unlock()
		return domain.VoteToggleResult{}, m.failVote
	}
	sp, ok := m.spots[req.SpotID]
	if !ok {
		m.mu.Unlock()
		return domain.VoteToggleResult{}, domain.ErrSpotNotFound
	}

	liked := true
	kept := m.votes[:0:0]
	for _, v := range m.votes {
		if v.SpotID == req.SpotID && v.UserName == req.UserName {
			liked = false
			continue
		}
		kept = append(kept, v)
	}
	if liked {
		m.nextVoteID++
		kept = append(kept, domain.Vote{
			ID:       m.nextVoteID,
			RoomID:   roomID,
			SpotID:   req.SpotID,
			UserName: req.UserName,
			VoteType: domain.VoteLike,
		})
		sp.Votes++
	} else if sp.Votes > 0 {
		sp.Votes--
	}
	m.votes = kept
	m.spots[sp.ID] = sp
	m.mu.Unlock()

	m.emit(roomID, realtime.TableVotes, realtime.ActionInsert, req.SpotID)
	return domain.VoteToggleResult{SpotID: req.SpotID, Liked: liked, Votes: sp.Votes}, nil
}

type staticIdentity string

func (s staticIdentity) UserName() string { return string(s) }
