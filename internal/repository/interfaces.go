package repository

import (
	"context"

	"tripsync/internal/domain"
)

// SpotRepository defines the data operations on a room's spots
type SpotRepository interface {
	// ListByRoom returns the room's spots ordered by order, then id
	ListByRoom(ctx context.Context, roomID string) ([]domain.Spot, error)

	// Create inserts spot and fills in its id and created_at
	Create(ctx context.Context, spot *domain.Spot) error

	// Delete removes a spot by id and returns its room, "" if nothing matched
	Delete(ctx context.Context, id int64) (string, error)

	// DeleteByName removes every spot of the room with that name
	DeleteByName(ctx context.Context, roomID, name string) (int64, error)

	// UpdateStatus sets status and day and returns the spot's room
	UpdateStatus(ctx context.Context, id int64, update domain.StatusUpdate) (string, error)

	// UpdateOrder numbers the given spots of the room by their position
	UpdateOrder(ctx context.Context, roomID string, ids []int64) error
}

// VoteRepository defines the data operations on spot votes
type VoteRepository interface {
	// ListByRoom returns every like cast in the room
	ListByRoom(ctx context.Context, roomID string) ([]domain.Vote, error)

	// Toggle adds or removes the user's like and keeps the spot's counter
	// in step, in one transaction
	Toggle(ctx context.Context, roomID string, req domain.VoteToggleRequest) (domain.VoteToggleResult, error)
}

// RoomRepository defines the data operations on rooms
type RoomRepository interface {
	Create(ctx context.Context, name string) (*domain.Room, error)

	// GetByID returns nil when the room does not exist
	GetByID(ctx context.Context, id string) (*domain.Room, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Spot SpotRepository
	Vote VoteRepository
	Room RoomRepository
}
