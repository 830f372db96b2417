package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tripsync/internal/domain"
	"tripsync/pkg/database"
)

type voteRepository struct {
	db *database.PostgresDB
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(db *database.PostgresDB) VoteRepository {
	return &voteRepository{db: db}
}

// ListByRoom returns every like cast in the room
func (r *voteRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Vote, error) {
	query := `
		SELECT id, room_id, spot_id, user_name, vote_type, created_at
		FROM votes
		WHERE room_id = $1 AND vote_type = 'like'
		ORDER BY id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	votes := make([]domain.Vote, 0)
	for rows.Next() {
		var (
			vote     domain.Vote
			voteType string
		)
		if err := rows.Scan(&vote.ID, &vote.RoomID, &vote.SpotID, &vote.UserName, &voteType, &vote.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		vote.VoteType = domain.VoteType(voteType)
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate votes: %w", err)
	}

	return votes, nil
}

// Toggle adds or removes the user's like and keeps the spot's counter in step
func (r *voteRepository) Toggle(ctx context.Context, roomID string, req domain.VoteToggleRequest) (domain.VoteToggleResult, error) {
	result := domain.VoteToggleResult{SpotID: req.SpotID}

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM spots WHERE id = $1 AND room_id = $2 FOR UPDATE`,
			req.SpotID, roomID,
		).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSpotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock spot: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM votes WHERE spot_id = $1 AND user_name = $2`,
			req.SpotID, req.UserName,
		)
		if err != nil {
			return fmt.Errorf("failed to remove vote: %w", err)
		}

		delta := -1
		if tag.RowsAffected() == 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO votes (room_id, spot_id, user_name, vote_type) VALUES ($1, $2, $3, $4)`,
				roomID, req.SpotID, req.UserName, string(domain.VoteLike),
			)
			if err != nil {
				return fmt.Errorf("failed to insert vote: %w", err)
			}
			delta = 1
			result.Liked = true
		}

		err = tx.QueryRow(ctx,
			`UPDATE spots SET votes = GREATEST(votes + $2, 0) WHERE id = $1 RETURNING votes`,
			req.SpotID, delta,
		).Scan(&result.Votes)
		if err != nil {
			return fmt.Errorf("failed to update vote count: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.VoteToggleResult{}, err
	}

	return result, nil
}
