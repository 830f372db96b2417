package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tripsync/internal/domain"
	"tripsync/internal/realtime"
	"tripsync/internal/repository"
	apperrors "tripsync/pkg/errors"
)

type MockSpotRepository struct {
	mock.Mock
}

func (m *MockSpotRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Spot, error) {
	args := m.Called(ctx, roomID)
	spots, _ := args.Get(0).([]domain.Spot)
	return spots, args.Error(1)
}

func (m *MockSpotRepository) Create(ctx context.Context, spot *domain.Spot) error {
	args := m.Called(ctx, spot)
	return args.Error(0)
}

func (m *MockSpotRepository) Delete(ctx context.Context, id int64) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockSpotRepository) DeleteByName(ctx context.Context, roomID, name string) (int64, error) {
	args := m.Called(ctx, roomID, name)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSpotRepository) UpdateStatus(ctx context.Context, id int64, update domain.StatusUpdate) (string, error) {
	args := m.Called(ctx, id, update)
	return args.String(0), args.Error(1)
}

func (m *MockSpotRepository) UpdateOrder(ctx context.Context, roomID string, ids []int64) error {
	args := m.Called(ctx, roomID, ids)
	return args.Error(0)
}

type MockVoteRepository struct {
	mock.Mock
}

func (m *MockVoteRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Vote, error) {
	args := m.Called(ctx, roomID)
	votes, _ := args.Get(0).([]domain.Vote)
	return votes, args.Error(1)
}

func (m *MockVoteRepository) Toggle(ctx context.Context, roomID string, req domain.VoteToggleRequest) (domain.VoteToggleResult, error) {
	args := m.Called(ctx, roomID, req)
	return args.Get(0).(domain.VoteToggleResult), args.Error(1)
}

type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Create(ctx context.Context, name string) (*domain.Room, error) {
	args := m.Called(ctx, name)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *MockRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	args := m.Called(ctx, id)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

type spotServiceFixture struct {
	spots *MockSpotRepository
	votes *MockVoteRepository
	rooms *MockRoomRepository
	hub   *realtime.Hub
	svc   *SpotService
}

func newSpotServiceFixture(t *testing.T) *spotServiceFixture {
	f := &spotServiceFixture{
		spots: new(MockSpotRepository),
		votes: new(MockVoteRepository),
		rooms: new(MockRoomRepository),
		hub:   realtime.NewHub(zap.NewNop(), 8),
	}
	t.Cleanup(func() { f.hub.Close() })
	f.svc = NewSpotService(repository.Repositories{Spot: f.spots, Vote: f.votes, Room: f.rooms}, f.hub, zap.NewNop())
	return f
}

func (f *spotServiceFixture) subscribe(t *testing.T, roomID string) realtime.Subscription {
	sub, err := f.hub.Subscribe(context.Background(), roomID)
	require.NoError(t, err)
	return sub
}

func nextEvent(t *testing.T, sub realtime.Subscription) realtime.ChangeEvent {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no change event published")
		return realtime.ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, sub realtime.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected change event %+v", ev)
	default:
	}
}

func assertAppErrorType(t *testing.T, err error, want apperrors.ErrorType) {
	t.Helper()
	appErr := apperrors.As(err)
	require.NotNil(t, appErr, "expected an AppError, got %v", err)
	assert.Equal(t, want, appErr.Type)
}

func TestSpotService_InsertSpot(t *testing.T) {
	ctx := context.Background()

	t.Run("applies defaults, persists and publishes", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-1")

		f.rooms.On("GetByID", ctx, "room-1").Return(&domain.Room{ID: "room-1"}, nil)
		f.spots.On("Create", ctx, mock.MatchedBy(func(s *domain.Spot) bool {
			return s.Name == domain.UnknownSpotName && s.Status == domain.StatusCandidate && s.AddedBy == domain.GuestName && s.ID == 0
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Spot).ID = 42
		}).Return(nil)

		saved, err := f.svc.InsertSpot(ctx, domain.Spot{RoomID: "room-1", ID: 7, LocalKey: "tmp"})
		require.NoError(t, err)
		assert.Equal(t, int64(42), saved.ID)
		assert.Empty(t, saved.LocalKey)

		ev := nextEvent(t, sub)
		assert.Equal(t, realtime.TableSpots, ev.Table)
		assert.Equal(t, realtime.ActionInsert, ev.Action)
		assert.Equal(t, int64(42), ev.RowID)
		f.spots.AssertExpectations(t)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newSpotServiceFixture(t)

		_, err := f.svc.InsertSpot(ctx, domain.Spot{Name: "Tower"})
		assertAppErrorType(t, err, apperrors.ErrorTypeValidation)

		_, err = f.svc.InsertSpot(ctx, domain.Spot{RoomID: "room-1", Name: "Tower", Status: "maybe"})
		assertAppErrorType(t, err, apperrors.ErrorTypeValidation)

		_, err = f.svc.InsertSpot(ctx, domain.Spot{RoomID: "room-1", Name: "Tower", Day: -1})
		assertAppErrorType(t, err, apperrors.ErrorTypeValidation)

		f.rooms.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		f.spots.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown room is rejected before the insert", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-x")
		f.rooms.On("GetByID", ctx, "room-x").Return(nil, nil)

		_, err := f.svc.InsertSpot(ctx, domain.Spot{RoomID: "room-x", Name: "Tower"})
		assertAppErrorType(t, err, apperrors.ErrorTypeNotFound)
		f.spots.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		assertNoEvent(t, sub)
	})

	t.Run("room lookup failure is returned", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		f.rooms.On("GetByID", ctx, "room-1").Return(nil, errors.New("db down"))

		_, err := f.svc.InsertSpot(ctx, domain.Spot{RoomID: "room-1", Name: "Tower"})
		assert.EqualError(t, err, "db down")
		f.spots.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("room deleted during the insert", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		f.rooms.On("GetByID", ctx, "room-1").Return(&domain.Room{ID: "room-1"}, nil)
		f.spots.On("Create", ctx, mock.Anything).Return(domain.ErrRoomNotFound)

		_, err := f.svc.InsertSpot(ctx, domain.Spot{RoomID: "room-1", Name: "Tower"})
		assertAppErrorType(t, err, apperrors.ErrorTypeNotFound)
	})

	t.Run("repository failure publishes nothing", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-1")
		f.rooms.On("GetByID", ctx, "room-1").Return(&domain.Room{ID: "room-1"}, nil)
		f.spots.On("Create", ctx, mock.Anything).Return(errors.New("db down"))

		_, err := f.svc.InsertSpot(ctx, domain.Spot{RoomID: "room-1", Name: "Tower"})
		assert.EqualError(t, err, "db down")
		assertNoEvent(t, sub)
	})
}

func TestSpotService_DeleteSpot(t *testing.T) {
	ctx := context.Background()

	t.Run("by id publishes to the spot's room", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-1")
		f.spots.On("Delete", ctx, int64(5)).Return("room-1", nil)

		require.NoError(t, f.svc.DeleteSpot(ctx, "room-1", domain.SpotRef{ID: 5, Name: "Tower"}))
		ev := nextEvent(t, sub)
		assert.Equal(t, realtime.ActionDelete, ev.Action)
		assert.Equal(t, int64(5), ev.RowID)
		f.spots.AssertNotCalled(t, "DeleteByName", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing id is not an error", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-1")
		f.spots.On("Delete", ctx, int64(5)).Return("", nil)

		require.NoError(t, f.svc.DeleteSpot(ctx, "room-1", domain.SpotRef{ID: 5}))
		assertNoEvent(t, sub)
	})

	t.Run("by name is scoped to the room", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-1")
		f.spots.On("DeleteByName", ctx, "room-1", "Tower").Return(int64(2), nil)

		require.NoError(t, f.svc.DeleteSpot(ctx, "room-1", domain.SpotRef{Name: " Tower "}))
		assert.Equal(t, realtime.ActionDelete, nextEvent(t, sub).Action)
		f.spots.AssertExpectations(t)
	})

	t.Run("by name needs a room and a name", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		assertAppErrorType(t, f.svc.DeleteSpot(ctx, "", domain.SpotRef{Name: "Tower"}), apperrors.ErrorTypeValidation)
		assertAppErrorType(t, f.svc.DeleteSpot(ctx, "room-1", domain.SpotRef{}), apperrors.ErrorTypeValidation)
	})
}

func TestSpotService_UpdateSpotStatus(t *testing.T) {
	ctx := context.Background()
	update := domain.StatusUpdate{Status: domain.StatusConfirmed, Day: 2}

	t.Run("success", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-1")
		f.spots.On("UpdateStatus", ctx, int64(3), update).Return("room-1", nil)

		require.NoError(t, f.svc.UpdateSpotStatus(ctx, 3, update))
		ev := nextEvent(t, sub)
		assert.Equal(t, realtime.ActionUpdate, ev.Action)
		assert.Equal(t, int64(3), ev.RowID)
	})

	t.Run("unknown spot", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		f.spots.On("UpdateStatus", ctx, int64(3), update).Return("", domain.ErrSpotNotFound)
		assertAppErrorType(t, f.svc.UpdateSpotStatus(ctx, 3, update), apperrors.ErrorTypeNotFound)
	})

	t.Run("invalid status", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		assertAppErrorType(t, f.svc.UpdateSpotStatus(ctx, 3, domain.StatusUpdate{Status: "done"}), apperrors.ErrorTypeValidation)
		assertAppErrorType(t, f.svc.UpdateSpotStatus(ctx, 3, domain.StatusUpdate{Status: domain.StatusConfirmed, Day: -2}), apperrors.ErrorTypeValidation)
	})
}

func TestSpotService_UpdateSpotOrder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		ids     []int64
		wantErr bool
	}{
		{name: "sequence", ids: []int64{3, 1, 2}},
		{name: "empty list", ids: []int64{}},
		{name: "duplicate id", ids: []int64{1, 1}, wantErr: true},
		{name: "provisional id", ids: []int64{1, 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSpotServiceFixture(t)
			f.spots.On("UpdateOrder", ctx, "room-1", tt.ids).Return(nil)

			err := f.svc.UpdateSpotOrder(ctx, "room-1", tt.ids)
			if tt.wantErr {
				assertAppErrorType(t, err, apperrors.ErrorTypeValidation)
				f.spots.AssertNotCalled(t, "UpdateOrder", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			f.spots.AssertExpectations(t)
		})
	}
}

func TestSpotService_ToggleVote(t *testing.T) {
	ctx := context.Background()

	t.Run("like then unlike", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		sub := f.subscribe(t, "room-1")
		req := domain.VoteToggleRequest{SpotID: 9, UserName: "Aki"}
		f.votes.On("Toggle", ctx, "room-1", req).Return(domain.VoteToggleResult{SpotID: 9, Liked: true, Votes: 1}, nil).Once()
		f.votes.On("Toggle", ctx, "room-1", req).Return(domain.VoteToggleResult{SpotID: 9, Liked: false, Votes: 0}, nil).Once()

		res, err := f.svc.ToggleVote(ctx, "room-1", domain.VoteToggleRequest{SpotID: 9, UserName: " Aki "})
		require.NoError(t, err)
		assert.True(t, res.Liked)
		ev := nextEvent(t, sub)
		assert.Equal(t, realtime.TableVotes, ev.Table)
		assert.Equal(t, realtime.ActionInsert, ev.Action)

		res, err = f.svc.ToggleVote(ctx, "room-1", req)
		require.NoError(t, err)
		assert.False(t, res.Liked)
		assert.Equal(t, realtime.ActionDelete, nextEvent(t, sub).Action)
	})

	t.Run("requires a user name", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		_, err := f.svc.ToggleVote(ctx, "room-1", domain.VoteToggleRequest{SpotID: 9, UserName: "  "})
		assertAppErrorType(t, err, apperrors.ErrorTypeValidation)
	})

	t.Run("spot outside the room", func(t *testing.T) {
		f := newSpotServiceFixture(t)
		req := domain.VoteToggleRequest{SpotID: 9, UserName: "Aki"}
		f.votes.On("Toggle", ctx, "room-2", req).Return(domain.VoteToggleResult{}, domain.ErrSpotNotFound)

		_, err := f.svc.ToggleVote(ctx, "room-2", req)
		assertAppErrorType(t, err, apperrors.ErrorTypeNotFound)
	})
}

func TestSpotService_CreateRoom(t *testing.T) {
	ctx := context.Background()
	f := newSpotServiceFixture(t)
	f.rooms.On("Create", ctx, "Kyoto trip").Return(&domain.Room{ID: "abc", Name: "Kyoto trip"}, nil)

	room, err := f.svc.CreateRoom(ctx, "  Kyoto trip ")
	require.NoError(t, err)
	assert.Equal(t, "abc", room.ID)

	_, err = f.svc.CreateRoom(ctx, " ")
	assertAppErrorType(t, err, apperrors.ErrorTypeValidation)
}
