// Package itinerary keeps a room's spots in sync across collaborating
// clients and derives day timelines and camera tours from them.
package itinerary

import (
	"context"
	"errors"
	"fmt"

	"tripsync/internal/domain"
)

// Backend is the row store a room's spots and votes live in. Every call is a
// single-row operation except ToggleVote, which also maintains the spot's
// vote counter.
type Backend interface {
	ListSpots(ctx context.Context, roomID string) ([]domain.Spot, error)
	ListVotes(ctx context.Context, roomID string) ([]domain.Vote, error)
	InsertSpot(ctx context.Context, spot domain.Spot) (domain.Spot, error)
	DeleteSpot(ctx context.Context, roomID string, ref domain.SpotRef) error
	UpdateSpotStatus(ctx context.Context, spotID int64, update domain.StatusUpdate) error
	UpdateSpotOrder(ctx context.Context, roomID string, spotIDs []int64) error
	ToggleVote(ctx context.Context, roomID string, req domain.VoteToggleRequest) (domain.VoteToggleResult, error)
}

// Identity supplies the display name mutations are attributed to
type Identity interface {
	UserName() string
}

var (
	ErrEmptyRef       = errors.New("spot reference has neither id nor name")
	ErrNotPersisted   = errors.New("spot has no server id yet")
	ErrNoIdentity     = errors.New("no display name for this room")
	ErrNoRoom         = errors.New("no room selected")
	ErrEmptyName      = errors.New("display name is empty")
	ErrTourInProgress = errors.New("tour already playing")
)

// Op names a store mutation
type Op string

const (
	OpAdd          Op = "add"
	OpRemove       Op = "remove"
	OpUpdateStatus Op = "update_status"
	OpPersistOrder Op = "persist_order"
	OpToggleVote   Op = "toggle_vote"
)

// Recovery tells the caller what happened to local state after a failed
// mutation
type Recovery int

const (
	// RecoverySurface means local state was rolled back and the caller should
	// tell the user
	RecoverySurface Recovery = iota + 1
	// RecoveryReload means a corrective full reload already replaced the
	// optimistic change
	RecoveryReload
)

func (r Recovery) String() string {
	switch r {
	case RecoverySurface:
		return "surface"
	case RecoveryReload:
		return "reload"
	default:
		return "unknown"
	}
}

// MutationError is returned by every store mutation that did not persist
type MutationError struct {
	Op       Op
	Recovery Recovery
	Err      error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed (recovery: %s): %v", e.Op, e.Recovery, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// RecoveryOf extracts the recovery action from err, if it is a mutation error
func RecoveryOf(err error) (Recovery, bool) {
	var mErr *MutationError
	if errors.As(err, &mErr) {
		return mErr.Recovery, true
	}
	return 0, false
}
