package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tripsync/internal/domain"
	"tripsync/pkg/database"
)

type roomRepository struct {
	db *database.PostgresDB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *database.PostgresDB) RoomRepository {
	return &roomRepository{db: db}
}

// Create inserts a room with a generated id
func (r *roomRepository) Create(ctx context.Context, name string) (*domain.Room, error) {
	room := domain.Room{Name: name}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO rooms (name) VALUES ($1) RETURNING id, created_at`,
		name,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return &room, nil
}

// GetByID returns nil when the room does not exist
func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = $1`,
		id,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}
