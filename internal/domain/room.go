package domain

import "time"

// TermsVersion is the suffix of the persisted terms-accepted flag. Bump it to
// make every client accept the terms again.
const TermsVersion = "v1"

// Room scopes one shared itinerary
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRoomRequest is the body of a room creation call
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// SessionState is what a client remembers about itself in one room
type SessionState struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	Joined   bool   `json:"joined"`
	Loading  bool   `json:"loading"`
}
