package domain

import (
	"time"
)

// VoteType is the kind of reaction a voter left on a spot. Likes are the
// only kind the votes table accepts.
type VoteType string

const VoteLike VoteType = "like"

// Vote records one voter's reaction to a spot in a room
type Vote struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	SpotID    int64     `json:"spot_id"`
	UserName  string    `json:"user_name"`
	VoteType  VoteType  `json:"vote_type"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteToggleRequest asks the backend to flip a user's like on a spot
type VoteToggleRequest struct {
	SpotID   int64  `json:"spot_id"`
	UserName string `json:"user_name"`
}

// VoteToggleResult reports the state after a toggle
type VoteToggleResult struct {
	SpotID int64 `json:"spot_id"`
	Liked  bool  `json:"liked"`
	Votes  int   `json:"votes"`
}

// FindVote returns the vote a user left on a spot, if any
func FindVote(votes []Vote, spotID int64, userName string) (Vote, bool) {
	for _, v := range votes {
		if v.SpotID == spotID && v.UserName == userName {
			return v, true
		}
	}
	return Vote{}, false
}

// CountLikes returns the number of like votes for a spot
func CountLikes(votes []Vote, spotID int64) int {
	n := 0
	for _, v := range votes {
		if v.SpotID == spotID && v.VoteType == VoteLike {
			n++
		}
	}
	return n
}
