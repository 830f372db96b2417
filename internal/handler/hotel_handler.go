package handler

import (
	"context"
	"net/http"

	"tripsync/internal/service"
	"tripsync/pkg/logger"
)

// HotelLookup resolves a hotel name to the travel provider's id
type HotelLookup interface {
	Lookup(ctx context.Context, keyword string) service.HotelLookupResult
}

// HotelHandler serves the hotel id lookup
type HotelHandler struct {
	hotels HotelLookup
	logger *logger.Logger
}

// NewHotelHandler creates a new hotel handler
func NewHotelHandler(hotels HotelLookup, logger *logger.Logger) *HotelHandler {
	return &HotelHandler{hotels: hotels, logger: logger}
}

// Search handles GET /api/search_hotel?keyword=. The body always has an id
// field, null when nothing matched; missing input is reported in error with
// a 200 so map popups can render it.
func (h *HotelHandler) Search(w http.ResponseWriter, r *http.Request) {
	result := h.hotels.Lookup(r.Context(), r.URL.Query().Get("keyword"))
	if result.Error != "" {
		h.logger.WithField("error", result.Error).Debug("Hotel lookup rejected")
	}
	respondJSON(w, http.StatusOK, result)
}
