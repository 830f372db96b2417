package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexID is an identifier that arrives either as a JSON number (a persisted
// spot id) or as a JSON string (an id minted by a map search provider)
type FlexID struct {
	Num   int64
	Str   string
	IsNum bool
}

// NumID builds a numeric FlexID
func NumID(id int64) FlexID {
	return FlexID{Num: id, IsNum: true}
}

// StrID builds a string FlexID
func StrID(id string) FlexID {
	return FlexID{Str: id}
}

// Empty reports whether no id was supplied
func (f FlexID) Empty() bool {
	return !f.IsNum && f.Str == ""
}

// Equal compares two ids including their kind
func (f FlexID) Equal(other FlexID) bool {
	if f.IsNum != other.IsNum {
		return false
	}
	if f.IsNum {
		return f.Num == other.Num
	}
	return f.Str == other.Str
}

// String renders the id for logs
func (f FlexID) String() string {
	if f.IsNum {
		return strconv.FormatInt(f.Num, 10)
	}
	return f.Str
}

// UnmarshalJSON accepts numbers, strings and null
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = StrID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or a string: %w", err)
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*f = NumID(i)
	return nil
}

// MarshalJSON writes the id back in the kind it arrived in
func (f FlexID) MarshalJSON() ([]byte, error) {
	switch {
	case f.IsNum:
		return []byte(strconv.FormatInt(f.Num, 10)), nil
	case f.Str != "":
		return json.Marshal(f.Str)
	default:
		return []byte("null"), nil
	}
}

// Candidate is the loosely typed input to an add: a map search result, a
// search-panel selection or an existing spot. Field names follow the map
// provider's payloads.
type Candidate struct {
	ID          FlexID     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Text        string     `json:"text,omitempty"`
	Description string     `json:"description,omitempty"`
	PlaceName   string     `json:"place_name,omitempty"`
	Coordinates *LngLat    `json:"coordinates,omitempty"`
	Center      *LngLat    `json:"center,omitempty"`
	Status      SpotStatus `json:"status,omitempty"`
	Price       *int       `json:"price,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	URL         *string    `json:"url,omitempty"`
	PlanID      *string    `json:"plan_id,omitempty"`
	IsHotel     bool       `json:"is_hotel,omitempty"`
	StayTime    *int       `json:"stay_time,omitempty"`
}

// DisplayName resolves the name the spot will be stored under
func (c Candidate) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Text != "":
		return c.Text
	default:
		return UnknownSpotName
	}
}

// Position resolves explicit coordinates first, then the map center field
func (c Candidate) Position() *LngLat {
	if c.Coordinates != nil {
		p := *c.Coordinates
		return &p
	}
	if c.Center != nil {
		p := *c.Center
		return &p
	}
	return nil
}

// ResolveDescription prefers the selected search result's place name when the
// selection refers to the same candidate, since the user may have edited it
func (c Candidate) ResolveDescription(selected *Candidate) string {
	if selected != nil && selected.ID.Equal(c.ID) && selected.PlaceName != "" {
		return selected.PlaceName
	}
	if c.Description != "" {
		return c.Description
	}
	return c.PlaceName
}

// Ref returns the removal identity of the candidate: numeric ids go through
// the primary key, anything else falls back to the display name
func (c Candidate) Ref() SpotRef {
	name := c.Name
	if name == "" {
		name = c.Text
	}
	if c.ID.IsNum {
		return SpotRef{ID: c.ID.Num, Name: name}
	}
	return SpotRef{Name: name}
}

// NewSpot builds the record persisted for an add. order is the append
// position and addedBy the session display name (empty means guest).
func NewSpot(roomID string, c Candidate, selected *Candidate, order int, addedBy string) Spot {
	status := c.Status
	if status == "" {
		status = StatusCandidate
	}
	if addedBy == "" {
		addedBy = GuestName
	}
	return Spot{
		RoomID:      roomID,
		Name:        c.DisplayName(),
		Description: c.ResolveDescription(selected),
		Coordinates: c.Position(),
		Order:       order,
		Status:      status,
		Day:         0,
		Price:       c.Price,
		Rating:      c.Rating,
		ImageURL:    c.ImageURL,
		URL:         c.URL,
		PlanID:      c.PlanID,
		IsHotel:     c.IsHotel,
		StayTime:    c.StayTime,
		AddedBy:     addedBy,
		Votes:       0,
	}
}
