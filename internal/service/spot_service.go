package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tripsync/internal/domain"
	"tripsync/internal/realtime"
	"tripsync/internal/repository"
	apperrors "tripsync/pkg/errors"
)

// SpotService is the row store behind a room's itinerary. Its method set is
// the itinerary backend, so the server handlers and an in-process engine use
// the same code path. Every successful write publishes a change event.
type SpotService struct {
	spots     repository.SpotRepository
	votes     repository.VoteRepository
	rooms     repository.RoomRepository
	publisher realtime.Publisher
	logger    *zap.Logger
}

// NewSpotService creates a spot service. A nil publisher publishes nothing,
// which is right when database triggers emit the notifications.
func NewSpotService(repos repository.Repositories, publisher realtime.Publisher, logger *zap.Logger) *SpotService {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &SpotService{
		spots:     repos.Spot,
		votes:     repos.Vote,
		rooms:     repos.Room,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateRoom creates a new room
func (s *SpotService) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("room name is required", nil)
	}
	room, err := s.rooms.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Room created", zap.String("room_id", room.ID))
	return room, nil
}

// ListSpots returns the room's spots in display order
func (s *SpotService) ListSpots(ctx context.Context, roomID string) ([]domain.Spot, error) {
	if roomID == "" {
		return nil, apperrors.NewValidationError("room id is required", nil)
	}
	return s.spots.ListByRoom(ctx, roomID)
}

// ListVotes returns every like cast in the room
func (s *SpotService) ListVotes(ctx context.Context, roomID string) ([]domain.Vote, error) {
	if roomID == "" {
		return nil, apperrors.NewValidationError("room id is required", nil)
	}
	return s.votes.ListByRoom(ctx, roomID)
}

// InsertSpot persists a new spot and returns it with its server id
func (s *SpotService) InsertSpot(ctx context.Context, spot domain.Spot) (domain.Spot, error) {
	if spot.RoomID == "" {
		return domain.Spot{}, apperrors.NewValidationError("room id is required", nil)
	}
	spot.ID = 0
	spot.LocalKey = ""
	spot.Name = strings.TrimSpace(spot.Name)
	if spot.Name == "" {
		spot.Name = domain.UnknownSpotName
	}
	if spot.Status == "" {
		spot.Status = domain.StatusCandidate
	}
	if !spot.Status.Valid() {
		return domain.Spot{}, invalidStatus(spot.Status)
	}
	if spot.Day < 0 {
		return domain.Spot{}, apperrors.NewValidationError("day must not be negative", nil)
	}
	if strings.TrimSpace(spot.AddedBy) == "" {
		spot.AddedBy = domain.GuestName
	}

	room, err := s.rooms.GetByID(ctx, spot.RoomID)
	if err != nil {
		return domain.Spot{}, err
	}
	if room == nil {
		return domain.Spot{}, apperrors.NewNotFoundError(fmt.Sprintf("room %s not found", spot.RoomID))
	}

	// the room can still go away before the insert lands
	err = s.spots.Create(ctx, &spot)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Spot{}, apperrors.NewNotFoundError(fmt.Sprintf("room %s not found", spot.RoomID))
	}
	if err != nil {
		return domain.Spot{}, err
	}

	s.logger.Info("Spot created",
		zap.String("room_id", spot.RoomID),
		zap.Int64("spot_id", spot.ID))
	s.publish(ctx, spot.RoomID, realtime.TableSpots, realtime.ActionInsert, spot.ID)
	return spot, nil
}

// DeleteSpot removes a spot by id, or every spot of the room with the
// reference's name when it has no id. Deleting nothing is not an error.
func (s *SpotService) DeleteSpot(ctx context.Context, roomID string, ref domain.SpotRef) error {
	if ref.ByID() {
		deletedFrom, err := s.spots.Delete(ctx, ref.ID)
		if err != nil {
			return err
		}
		if deletedFrom == "" {
			s.logger.Debug("Spot already gone", zap.Int64("spot_id", ref.ID))
			return nil
		}
		s.publish(ctx, deletedFrom, realtime.TableSpots, realtime.ActionDelete, ref.ID)
		return nil
	}

	name := strings.TrimSpace(ref.Name)
	if roomID == "" || name == "" {
		return apperrors.NewValidationError("room id and name are required to delete by name", nil)
	}
	n, err := s.spots.DeleteByName(ctx, roomID, name)
	if err != nil {
		return err
	}
	if n > 1 {
		s.logger.Warn("Name delete matched several spots", zap.String("room_id", roomID), zap.Int64("deleted", n))
	}
	if n > 0 {
		s.publish(ctx, roomID, realtime.TableSpots, realtime.ActionDelete, 0)
	}
	return nil
}

// UpdateSpotStatus sets a spot's status and day
func (s *SpotService) UpdateSpotStatus(ctx context.Context, spotID int64, update domain.StatusUpdate) error {
	if !update.Status.Valid() {
		return invalidStatus(update.Status)
	}
	if update.Day < 0 {
		return apperrors.NewValidationError("day must not be negative", nil)
	}

	roomID, err := s.spots.UpdateStatus(ctx, spotID, update)
	if errors.Is(err, domain.ErrSpotNotFound) {
		return apperrors.NewNotFoundError(fmt.Sprintf("spot %d not found", spotID))
	}
	if err != nil {
		return err
	}

	s.publish(ctx, roomID, realtime.TableSpots, realtime.ActionUpdate, spotID)
	return nil
}

// UpdateSpotOrder numbers the given spots by their position
func (s *SpotService) UpdateSpotOrder(ctx context.Context, roomID string, spotIDs []int64) error {
	if roomID == "" {
		return apperrors.NewValidationError("room id is required", nil)
	}
	seen := make(map[int64]bool, len(spotIDs))
	for _, id := range spotIDs {
		if id <= 0 || seen[id] {
			return apperrors.NewValidationError("spot ids must be positive and unique", map[string]interface{}{"spot_id": id})
		}
		seen[id] = true
	}

	if err := s.spots.UpdateOrder(ctx, roomID, spotIDs); err != nil {
		return err
	}
	s.publish(ctx, roomID, realtime.TableSpots, realtime.ActionUpdate, 0)
	return nil
}

// ToggleVote flips the user's like on a spot
func (s *SpotService) ToggleVote(ctx context.Context, roomID string, req domain.VoteToggleRequest) (domain.VoteToggleResult, error) {
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserName == "" {
		return domain.VoteToggleResult{}, apperrors.NewValidationError("user name is required", nil)
	}
	if req.SpotID <= 0 {
		return domain.VoteToggleResult{}, apperrors.NewValidationError("spot id is required", nil)
	}

	result, err := s.votes.Toggle(ctx, roomID, req)
	if errors.Is(err, domain.ErrSpotNotFound) {
		return domain.VoteToggleResult{}, apperrors.NewNotFoundError(fmt.Sprintf("spot %d not found in room", req.SpotID))
	}
	if err != nil {
		return domain.VoteToggleResult{}, err
	}

	action := realtime.ActionInsert
	if !result.Liked {
		action = realtime.ActionDelete
	}
	s.publish(ctx, roomID, realtime.TableVotes, action, req.SpotID)
	return result, nil
}

// publish never fails the write: subscribers also reload on their next
// subscription
func (s *SpotService) publish(ctx context.Context, roomID, table string, action realtime.Action, rowID int64) {
	event := realtime.ChangeEvent{
		RoomID: roomID,
		Table:  table,
		Action: action,
		RowID:  rowID,
		At:     time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish change event",
			zap.String("room_id", roomID),
			zap.String("table", table),
			zap.Error(err))
	}
}

func invalidStatus(status domain.SpotStatus) *apperrors.AppError {
	return apperrors.NewValidationError("invalid spot status", map[string]interface{}{
		"status":  string(status),
		"allowed": []string{string(domain.StatusCandidate), string(domain.StatusConfirmed), string(domain.StatusHotelCandidate)},
	})
}
