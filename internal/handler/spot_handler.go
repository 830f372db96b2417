package handler

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tripsync/internal/domain"
	"tripsync/internal/itinerary"
	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/logger"
)

// SpotService is the row store the handlers expose
type SpotService interface {
	itinerary.Backend
	CreateRoom(ctx context.Context, name string) (*domain.Room, error)
}

// SpotHandler serves the REST surface over rooms, spots and votes
type SpotHandler struct {
	spots  SpotService
	logger *logger.Logger
}

// NewSpotHandler creates a new spot handler
func NewSpotHandler(spots SpotService, logger *logger.Logger) *SpotHandler {
	return &SpotHandler{
		spots:  spots,
		logger: logger,
	}
}

// RegisterRoutes mounts the handler under /api
func (h *SpotHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms", h.CreateRoom)

	r.Route("/rooms/{roomID}", func(r chi.Router) {
		r.Get("/spots", h.ListSpots)
		r.Post("/spots", h.InsertSpot)
		r.Delete("/spots", h.DeleteSpotByName)
		r.Put("/order", h.UpdateOrder)
		r.Get("/votes", h.ListVotes)
		r.Post("/votes/toggle", h.ToggleVote)
	})

	r.Delete("/spots/{spotID}", h.DeleteSpot)
	r.Patch("/spots/{spotID}/status", h.UpdateStatus)
}

// CreateRoom handles POST /api/rooms
func (h *SpotHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, err := h.spots.CreateRoom(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, room)
}

// ListSpots handles GET /api/rooms/{roomID}/spots
func (h *SpotHandler) ListSpots(w http.ResponseWriter, r *http.Request) {
	spots, err := h.spots.ListSpots(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	// Generate ETag based on content
	etag := h.generateETag(spots)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")

	h.respondJSON(w, http.StatusOK, spots)
}

// InsertSpot handles POST /api/rooms/{roomID}/spots
func (h *SpotHandler) InsertSpot(w http.ResponseWriter, r *http.Request) {
	var spot domain.Spot
	if !h.decode(w, r, &spot) {
		return
	}
	spot.RoomID = chi.URLParam(r, "roomID")

	saved, err := h.spots.InsertSpot(r.Context(), spot)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, saved)
}

// DeleteSpot handles DELETE /api/spots/{spotID}
func (h *SpotHandler) DeleteSpot(w http.ResponseWriter, r *http.Request) {
	spotID, ok := h.spotID(w, r)
	if !ok {
		return
	}

	if err := h.spots.DeleteSpot(r.Context(), "", domain.SpotRef{ID: spotID}); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteSpotByName handles DELETE /api/rooms/{roomID}/spots?name=
func (h *SpotHandler) DeleteSpotByName(w http.ResponseWriter, r *http.Request) {
	ref := domain.SpotRef{Name: r.URL.Query().Get("name")}
	if err := h.spots.DeleteSpot(r.Context(), chi.URLParam(r, "roomID"), ref); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus handles PATCH /api/spots/{spotID}/status
func (h *SpotHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	spotID, ok := h.spotID(w, r)
	if !ok {
		return
	}
	var update domain.StatusUpdate
	if !h.decode(w, r, &update) {
		return
	}

	if err := h.spots.UpdateSpotStatus(r.Context(), spotID, update); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateOrder handles PUT /api/rooms/{roomID}/order
func (h *SpotHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.spots.UpdateSpotOrder(r.Context(), chi.URLParam(r, "roomID"), req.SpotIDs); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListVotes handles GET /api/rooms/{roomID}/votes
func (h *SpotHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := h.spots.ListVotes(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, votes)
}

// ToggleVote handles POST /api/rooms/{roomID}/votes/toggle
func (h *SpotHandler) ToggleVote(w http.ResponseWriter, r *http.Request) {
	var req domain.VoteToggleRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.spots.ToggleVote(r.Context(), chi.URLParam(r, "roomID"), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func (h *SpotHandler) spotID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	spotID, err := strconv.ParseInt(chi.URLParam(r, "spotID"), 10, 64)
	if err != nil || spotID <= 0 {
		h.respondError(w, r, apperrors.NewValidationError("spot id must be a positive integer", nil))
		return 0, false
	}
	return spotID, true
}

func (h *SpotHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, r, apperrors.NewValidationError("invalid request body", map[string]interface{}{"reason": err.Error()}))
		return false
	}
	return true
}

func (h *SpotHandler) generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}

func (h *SpotHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, data)
}

func (h *SpotHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, h.logger, err)
}
