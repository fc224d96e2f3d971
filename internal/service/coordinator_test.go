package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/call"
	"github.com/Freeeeeet/skillswap_core/internal/media"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/repository"
	"github.com/Freeeeeet/skillswap_core/internal/room"
	"github.com/Freeeeeet/skillswap_core/internal/session"
	"github.com/Freeeeeet/skillswap_core/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSessionAPI struct {
	session  model.Session
	room     *api.RoomDetails
	roomErr  error
	endCalls int
}

func (f *fakeSessionAPI) GetSession(context.Context, string) (*model.Session, error) {
	cp := f.session
	return &cp, nil
}

func (f *fakeSessionAPI) GetRoomDetails(context.Context, string) (*api.RoomDetails, error) {
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	return f.room, nil
}

func (f *fakeSessionAPI) UpdateSession(context.Context, string, api.StatusUpdate) (*model.Session, error) {
	return &f.session, nil
}

func (f *fakeSessionAPI) CancelSession(context.Context, string) (*model.Session, error) {
	return &f.session, nil
}

func (f *fakeSessionAPI) StartSession(context.Context, string) (*model.Session, error) {
	return &f.session, nil
}

func (f *fakeSessionAPI) EndSession(context.Context, string, api.EndRequest) (*model.Session, error) {
	f.endCalls++
	return &f.session, nil
}

func (f *fakeSessionAPI) SubmitReview(context.Context, string, model.Review) (*model.Session, error) {
	return &f.session, nil
}

func (f *fakeSessionAPI) RescheduleSession(context.Context, string, api.RescheduleRequest) (*model.Session, error) {
	return &f.session, nil
}

func newTestCoordinator(sessionAPI SessionAPI, userID string) *Coordinator {
	logger := zap.NewNop()
	ch := transport.NewChannel("ws://test", transport.NewWebSocketDialer(time.Second), transport.DefaultReconnectPolicy(), logger)
	reconciler := NewReconciliationService(repository.NewMemoryReconciliationRepository(), sessionAPI, logger)
	return NewCoordinator(
		sessionAPI,
		ch,
		room.NewManager(ch, logger),
		media.NewLinkProvider("https://meet.example", nil, logger),
		reconciler,
		userID,
		time.Second,
		logger,
	)
}

func inProgress() model.Session {
	started := time.Now().Add(-10 * time.Minute)
	return model.Session{
		ID:           "s1",
		TeacherID:    "teacher",
		StudentID:    "student",
		Skill:        "Go",
		ScheduledFor: started,
		Duration:     60,
		Status:       model.SessionStatusInProgress,
		StartedAt:    &started,
	}
}

func TestCoordinator_OpenRejectsStrangers(t *testing.T) {
	c := newTestCoordinator(&fakeSessionAPI{session: inProgress()}, "someone-else")

	_, err := c.Open(context.Background(), "s1")
	require.ErrorIs(t, err, session.ErrNotParticipant)
}

func TestCoordinator_OpenLoadsRoom(t *testing.T) {
	fake := &fakeSessionAPI{session: inProgress(), room: &api.RoomDetails{RoomID: "room-7"}}
	c := newTestCoordinator(fake, "student")

	active, err := c.Open(context.Background(), "s1")
	require.NoError(t, err)
	defer active.Close()

	assert.Equal(t, "room-7", active.Machine.Session().RoomID)
	assert.Equal(t, model.RoleStudent, active.Machine.Role())
}

func TestCoordinator_MissingRoomIsNotFatal(t *testing.T) {
	fake := &fakeSessionAPI{session: inProgress(), roomErr: &api.APIError{StatusCode: http.StatusNotFound}}
	c := newTestCoordinator(fake, "student")

	active, err := c.Open(context.Background(), "s1")
	require.NoError(t, err)
	defer active.Close()

	require.ErrorIs(t, active.Call.Join(context.Background(), "Ann"), call.ErrNoRoom)
}

func TestCoordinator_RemoteEndReportsExit(t *testing.T) {
	fake := &fakeSessionAPI{session: inProgress(), room: &api.RoomDetails{RoomID: "room-7"}}
	c := newTestCoordinator(fake, "student")

	active, err := c.Open(context.Background(), "s1")
	require.NoError(t, err)
	defer active.Close()

	require.NoError(t, active.Call.Join(context.Background(), "Ann"))
	active.Call.HandleRemoteEnded(model.SessionEndedPayload{SessionID: "s1", EndedBy: model.RoleTeacher})

	select {
	case reason := <-active.Exits():
		assert.Equal(t, call.ExitEndedRemotely, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("no exit reported")
	}
	assert.Equal(t, model.SessionStatusCompleted, active.Machine.Session().Status)
	assert.Equal(t, 0, fake.endCalls)
}

func TestCoordinator_LocalLeaveEndsOnServer(t *testing.T) {
	fake := &fakeSessionAPI{session: inProgress(), room: &api.RoomDetails{RoomID: "room-7"}}
	c := newTestCoordinator(fake, "teacher")

	active, err := c.Open(context.Background(), "s1")
	require.NoError(t, err)
	defer active.Close()

	require.NoError(t, active.Call.Join(context.Background(), "Tom"))
	require.NoError(t, active.Call.Leave("good progress"))

	assert.Equal(t, call.ExitEndedLocally, <-active.Exits())
	assert.Equal(t, 1, fake.endCalls)

	s := active.Machine.Session()
	assert.Equal(t, model.SessionStatusCompleted, s.Status)
	assert.Equal(t, "good progress", s.TeacherNotes)
}

func TestCoordinator_CloseReleasesStateListener(t *testing.T) {
	fake := &fakeSessionAPI{session: inProgress(), room: &api.RoomDetails{RoomID: "room-7"}}
	c := newTestCoordinator(fake, "student")

	active, err := c.Open(context.Background(), "s1")
	require.NoError(t, err)
	require.NotZero(t, active.stateSub)

	active.Close()
	assert.False(t, c.channel.OffStateChange(active.stateSub))
	assert.Empty(t, c.rooms.Current())
}
