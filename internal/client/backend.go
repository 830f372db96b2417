// Package client talks to a tripsync server: a REST backend for the
// itinerary store and a websocket change feed for its subscriber.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tripsync/internal/domain"
	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/logger"
)

// Backend implements the itinerary backend over the server's REST API
type Backend struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewBackend creates a REST backend for the server at baseURL
func NewBackend(baseURL string, logger *logger.Logger) *Backend {
	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// CreateRoom creates a room and returns it
func (b *Backend) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	var room domain.Room
	if err := b.do(ctx, http.MethodPost, "/api/rooms", domain.CreateRoomRequest{Name: name}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListSpots returns the room's spots ordered by order
func (b *Backend) ListSpots(ctx context.Context, roomID string) ([]domain.Spot, error) {
	spots := make([]domain.Spot, 0)
	err := b.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(roomID)+"/spots", nil, &spots)
	return spots, err
}

// ListVotes returns every vote cast in the room
func (b *Backend) ListVotes(ctx context.Context, roomID string) ([]domain.Vote, error) {
	votes := make([]domain.Vote, 0)
	err := b.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(roomID)+"/votes", nil, &votes)
	return votes, err
}

// InsertSpot persists spot and returns it with its server id
func (b *Backend) InsertSpot(ctx context.Context, spot domain.Spot) (domain.Spot, error) {
	var saved domain.Spot
	err := b.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(spot.RoomID)+"/spots", spot, &saved)
	return saved, err
}

// DeleteSpot removes by id, or by name within the room
func (b *Backend) DeleteSpot(ctx context.Context, roomID string, ref domain.SpotRef) error {
	if ref.ByID() {
		return b.do(ctx, http.MethodDelete, fmt.Sprintf("/api/spots/%d", ref.ID), nil, nil)
	}
	path := "/api/rooms/" + url.PathEscape(roomID) + "/spots?" + url.Values{"name": {ref.Name}}.Encode()
	return b.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateSpotStatus sets a spot's status and day
func (b *Backend) UpdateSpotStatus(ctx context.Context, spotID int64, update domain.StatusUpdate) error {
	return b.do(ctx, http.MethodPatch, fmt.Sprintf("/api/spots/%d/status", spotID), update, nil)
}

// UpdateSpotOrder numbers the room's spots by their position in spotIDs
func (b *Backend) UpdateSpotOrder(ctx context.Context, roomID string, spotIDs []int64) error {
	return b.do(ctx, http.MethodPut, "/api/rooms/"+url.PathEscape(roomID)+"/order", domain.OrderRequest{SpotIDs: spotIDs}, nil)
}

// ToggleVote flips the user's like on a spot
func (b *Backend) ToggleVote(ctx context.Context, roomID string, req domain.VoteToggleRequest) (domain.VoteToggleResult, error) {
	var result domain.VoteToggleResult
	err := b.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(roomID)+"/votes/toggle", req, &result)
	return result, err
}

// do sends body as JSON and decodes a 2xx answer into out. Error answers
// come back as *apperrors.AppError carrying the server's type and message.
func (b *Backend) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.decodeError(resp.StatusCode, respBody)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (b *Backend) decodeError(status int, body []byte) error {
	var resp apperrors.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Type == "" {
		b.logger.WithFields(map[string]interface{}{
			"status": status,
			"body":   string(body),
		}).Warn("Unexpected error response")
		return &apperrors.AppError{
			Type:       apperrors.ErrorTypeExternal,
			Message:    fmt.Sprintf("server returned status %d", status),
			StatusCode: status,
		}
	}
	return &apperrors.AppError{
		Type:       resp.Error.Type,
		Message:    resp.Error.Message,
		StatusCode: status,
		Details:    resp.Error.Details,
	}
}
