package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tripsync/internal/domain"
	"tripsync/pkg/database"
)

const spotColumns = `
	id, room_id, name, description, lng, lat, "order", status, day,
	price, rating, image_url, url, plan_id, is_hotel, stay_time,
	added_by, votes, created_at`

type spotRepository struct {
	db *database.PostgresDB
}

// NewSpotRepository creates a new spot repository
func NewSpotRepository(db *database.PostgresDB) SpotRepository {
	return &spotRepository{db: db}
}

func scanSpot(row pgx.Row) (domain.Spot, error) {
	var (
		spot     domain.Spot
		lng, lat *float64
		status   string
	)
	err := row.Scan(
		&spot.ID,
		&spot.RoomID,
		&spot.Name,
		&spot.Description,
		&lng,
		&lat,
		&spot.Order,
		&status,
		&spot.Day,
		&spot.Price,
		&spot.Rating,
		&spot.ImageURL,
		&spot.URL,
		&spot.PlanID,
		&spot.IsHotel,
		&spot.StayTime,
		&spot.AddedBy,
		&spot.Votes,
		&spot.CreatedAt,
	)
	if err != nil {
		return domain.Spot{}, err
	}
	spot.Status = domain.SpotStatus(status)
	if lng != nil && lat != nil {
		spot.Coordinates = &domain.LngLat{*lng, *lat}
	}
	return spot, nil
}

// ListByRoom returns the room's spots ordered by order, then id
func (r *spotRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Spot, error) {
	query := `SELECT ` + spotColumns + `
		FROM spots
		WHERE room_id = $1
		ORDER BY "order" ASC, id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	defer rows.Close()

	spots := make([]domain.Spot, 0)
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}
		spots = append(spots, spot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spots: %w", err)
	}

	return spots, nil
}

// Create inserts spot and fills in its id and created_at
func (r *spotRepository) Create(ctx context.Context, spot *domain.Spot) error {
	query := `
		INSERT INTO spots (
			room_id, name, description, lng, lat, "order", status, day,
			price, rating, image_url, url, plan_id, is_hotel, stay_time,
			added_by, votes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at
	`

	var lng, lat *float64
	if spot.Coordinates != nil {
		x, y := spot.Coordinates.Lng(), spot.Coordinates.Lat()
		lng, lat = &x, &y
	}

	err := r.db.Pool.QueryRow(ctx, query,
		spot.RoomID,
		spot.Name,
		spot.Description,
		lng,
		lat,
		spot.Order,
		string(spot.Status),
		spot.Day,
		spot.Price,
		spot.Rating,
		spot.ImageURL,
		spot.URL,
		spot.PlanID,
		spot.IsHotel,
		spot.StayTime,
		spot.AddedBy,
		spot.Votes,
	).Scan(&spot.ID, &spot.CreatedAt)

	if isForeignKeyViolation(err) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create spot: %w", err)
	}

	return nil
}

// Delete removes a spot by id and returns its room, "" if nothing matched
func (r *spotRepository) Delete(ctx context.Context, id int64) (string, error) {
	var roomID string
	err := r.db.Pool.QueryRow(ctx, `DELETE FROM spots WHERE id = $1 RETURNING room_id`, id).Scan(&roomID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete spot: %w", err)
	}
	return roomID, nil
}

// DeleteByName removes every spot of the room with that name
func (r *spotRepository) DeleteByName(ctx context.Context, roomID, name string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM spots WHERE room_id = $1 AND name = $2`, roomID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to delete spot by name: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateStatus sets status and day and returns the spot's room
func (r *spotRepository) UpdateStatus(ctx context.Context, id int64, update domain.StatusUpdate) (string, error) {
	query := `
		UPDATE spots
		SET status = $2, day = $3
		WHERE id = $1
		RETURNING room_id
	`

	var roomID string
	err := r.db.Pool.QueryRow(ctx, query, id, string(update.Status), update.Day).Scan(&roomID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrSpotNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to update spot status: %w", err)
	}
	return roomID, nil
}

// UpdateOrder numbers the given spots of the room by their position
func (r *spotRepository) UpdateOrder(ctx context.Context, roomID string, ids []int64) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE spots SET "order" = $3 WHERE id = $1 AND room_id = $2`, id, roomID, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to update spot order: %w", err)
		}
		return nil
	})
}

// isForeignKeyViolation reports a write that referenced a missing room or spot
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
