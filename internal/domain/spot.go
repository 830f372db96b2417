package domain

import (
	"errors"
	"sort"
	"time"
)

// SpotStatus is the lifecycle state of a spot inside a room's itinerary
type SpotStatus string

const (
	StatusCandidate      SpotStatus = "candidate"
	StatusConfirmed      SpotStatus = "confirmed"
	StatusHotelCandidate SpotStatus = "hotel_candidate"
)

// Defaults applied when a spot is created from a loosely typed candidate
const (
	UnknownSpotName = "unknown name"
	GuestName       = "Guest"
)

var (
	ErrSpotNotFound  = errors.New("spot not found")
	ErrRoomNotFound  = errors.New("room not found")
	ErrInvalidStatus = errors.New("invalid spot status")
)

// Valid reports whether s is one of the known statuses
func (s SpotStatus) Valid() bool {
	switch s {
	case StatusCandidate, StatusConfirmed, StatusHotelCandidate:
		return true
	}
	return false
}

// LngLat is a [longitude, latitude] pair, the order map viewports expect
type LngLat [2]float64

// Lng returns the longitude
func (p LngLat) Lng() float64 { return p[0] }

// Lat returns the latitude
func (p LngLat) Lat() float64 { return p[1] }

// Spot represents a place or hotel candidate in a room's itinerary
type Spot struct {
	ID          int64      `json:"id"`
	RoomID      string     `json:"room_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Coordinates *LngLat    `json:"coordinates,omitempty"`
	Order       int        `json:"order"`
	Status      SpotStatus `json:"status"`
	Day         int        `json:"day"`
	Price       *int       `json:"price,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	URL         *string    `json:"url,omitempty"`
	PlanID      *string    `json:"plan_id,omitempty"`
	IsHotel     bool       `json:"is_hotel"`
	StayTime    *int       `json:"stay_time,omitempty"` // minutes
	AddedBy     string     `json:"added_by"`
	Votes       int        `json:"votes"`
	CreatedAt   time.Time  `json:"created_at"`

	// LocalKey tags a provisional record that has not been persisted yet
	LocalKey string `json:"-"`
}

// Clone returns a copy that shares no pointers with s
func (s Spot) Clone() Spot {
	s.Coordinates = clonePtr(s.Coordinates)
	s.Price = clonePtr(s.Price)
	s.Rating = clonePtr(s.Rating)
	s.ImageURL = clonePtr(s.ImageURL)
	s.URL = clonePtr(s.URL)
	s.PlanID = clonePtr(s.PlanID)
	s.StayTime = clonePtr(s.StayTime)
	return s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Persisted reports whether the spot carries a server-assigned id
func (s Spot) Persisted() bool {
	return s.ID != 0
}

// Ref returns the identity used to remove this spot
func (s Spot) Ref() SpotRef {
	return SpotRef{ID: s.ID, Name: s.Name}
}

// OnDay reports whether the spot belongs to the timeline of the given day.
// Confirmed spots with day 0 are unassigned and show up on every day.
func (s Spot) OnDay(day int) bool {
	return s.Status == StatusConfirmed && (s.Day == day || s.Day == 0)
}

// SpotRef identifies a spot for deletion: by numeric id when available,
// otherwise by display name within the room
type SpotRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ByID reports whether the reference resolves through the primary key
func (r SpotRef) ByID() bool {
	return r.ID != 0
}

// Matches applies the same identity rule used for the backend delete
func (r SpotRef) Matches(s Spot) bool {
	if r.ByID() {
		return s.ID == r.ID
	}
	return s.Name == r.Name
}

// SortSpots orders spots for display: by order, ties broken by id with
// provisional records last
func SortSpots(spots []Spot) {
	sort.SliceStable(spots, func(i, j int) bool {
		a, b := spots[i], spots[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.Persisted() != b.Persisted() {
			return a.Persisted()
		}
		return a.ID < b.ID
	})
}

// StatusUpdate is the payload for a status/day change
type StatusUpdate struct {
	Status SpotStatus `json:"status"`
	Day    int        `json:"day"`
}

// OrderRequest persists the display order of a room's spots
type OrderRequest struct {
	SpotIDs []int64 `json:"spot_ids"`
}
