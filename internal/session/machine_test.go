package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu     sync.Mutex
	calls  []string
	err    error
	roomID string
	ends   []api.EndRequest

	serverRoomID string
	getErr       error
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &model.Session{ID: id, RoomID: f.serverRoomID}, nil
}

func (f *fakeStore) record(name string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Session{RoomID: f.roomID}, nil
}

func (f *fakeStore) UpdateSession(_ context.Context, _ string, upd api.StatusUpdate) (*model.Session, error) {
	return f.record("update:" + string(upd.Status))
}

func (f *fakeStore) CancelSession(context.Context, string) (*model.Session, error) {
	return f.record("cancel")
}

func (f *fakeStore) StartSession(context.Context, string) (*model.Session, error) {
	return f.record("start")
}

func (f *fakeStore) EndSession(_ context.Context, _ string, req api.EndRequest) (*model.Session, error) {
	f.mu.Lock()
	f.ends = append(f.ends, req)
	f.mu.Unlock()
	return f.record("end")
}

func (f *fakeStore) SubmitReview(context.Context, string, model.Review) (*model.Session, error) {
	return f.record("review")
}

func (f *fakeStore) RescheduleSession(context.Context, string, api.RescheduleRequest) (*model.Session, error) {
	return f.record("reschedule")
}

func (f *fakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestMachine(status model.SessionStatus, userID string, store *fakeStore, now time.Time) *Machine {
	return NewMachine(newSession(status), userID, store, zap.NewNop()).WithClock(func() time.Time { return now })
}

func TestMachine_AcceptCallsServer(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(model.SessionStatusPending, "teacher", store, baseTime.Add(-time.Hour))

	var seen []model.SessionStatus
	m.OnChange(func(s model.Session) { seen = append(seen, s.Status) })

	require.NoError(t, m.Accept(context.Background()))
	assert.Equal(t, model.SessionStatusConfirmed, m.Session().Status)
	assert.Equal(t, []string{"update:confirmed"}, store.Calls())
	assert.Equal(t, []model.SessionStatus{model.SessionStatusConfirmed}, seen)
}

func TestMachine_GuardRejectsBeforeServerCall(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(model.SessionStatusPending, "student", store, baseTime.Add(-time.Hour))

	err := m.Accept(context.Background())
	require.ErrorIs(t, err, ErrForbidden)
	assert.False(t, IsRetryable(err))
	assert.Empty(t, store.Calls())
	assert.Equal(t, model.SessionStatusPending, m.Session().Status)
}

func TestMachine_AlreadyAppliedIsSwallowed(t *testing.T) {
	store := &fakeStore{err: &api.APIError{StatusCode: http.StatusConflict, Message: "already confirmed"}}
	m := newTestMachine(model.SessionStatusPending, "teacher", store, baseTime.Add(-time.Hour))

	require.NoError(t, m.Accept(context.Background()))
	assert.Equal(t, model.SessionStatusConfirmed, m.Session().Status)
}

func TestMachine_ConcurrentStartLoadsRoom(t *testing.T) {
	store := &fakeStore{
		err:          &api.APIError{StatusCode: http.StatusBadRequest, Message: "already in progress"},
		serverRoomID: "room-9",
	}
	m := newTestMachine(model.SessionStatusConfirmed, "student", store, baseTime)

	require.NoError(t, m.Start(context.Background()))

	s := m.Session()
	assert.Equal(t, model.SessionStatusInProgress, s.Status)
	assert.Equal(t, "room-9", s.RoomID)
	assert.Equal(t, []string{"start", "get"}, store.Calls())
}

func TestMachine_ConcurrentStartRefetchFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{
		err:    &api.APIError{StatusCode: http.StatusBadRequest},
		getErr: errors.New("offline"),
	}
	m := newTestMachine(model.SessionStatusConfirmed, "student", store, baseTime)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, model.SessionStatusInProgress, m.Session().Status)
	assert.Empty(t, m.Session().RoomID)
}

func TestMachine_ServerErrorLeavesStateUnchanged(t *testing.T) {
	store := &fakeStore{err: &api.APIError{StatusCode: http.StatusBadGateway}}
	m := newTestMachine(model.SessionStatusConfirmed, "student", store, baseTime)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ActionStart, te.Action)
	assert.Equal(t, model.SessionStatusConfirmed, m.Session().Status)
}

func TestMachine_StartTakesRoomFromServer(t *testing.T) {
	store := &fakeStore{roomID: "room-42"}
	m := newTestMachine(model.SessionStatusConfirmed, "student", store, baseTime.Add(5*time.Minute))

	require.NoError(t, m.Start(context.Background()))
	s := m.Session()
	assert.Equal(t, model.SessionStatusInProgress, s.Status)
	assert.Equal(t, "room-42", s.RoomID)
}

func TestMachine_EndSendsDurationAndNotes(t *testing.T) {
	store := &fakeStore{}
	now := baseTime.Add(30 * time.Minute)
	m := newTestMachine(model.SessionStatusConfirmed, "teacher", store, baseTime)
	require.NoError(t, m.Start(context.Background()))

	m.WithClock(func() time.Time { return now })
	require.NoError(t, m.End(context.Background(), "homework: channels"))

	s := m.Session()
	assert.Equal(t, model.SessionStatusCompleted, s.Status)
	assert.Equal(t, model.RoleTeacher, s.EndedBy)
	assert.Equal(t, "homework: channels", s.TeacherNotes)
	require.Len(t, store.ends, 1)
	assert.Equal(t, 30, store.ends[0].ActualDuration)
	assert.Equal(t, "homework: channels", store.ends[0].Notes)
}

func TestMachine_HandleStatusUpdate(t *testing.T) {
	m := newTestMachine(model.SessionStatusPending, "student", &fakeStore{}, baseTime.Add(-time.Hour))

	m.HandleStatusUpdate(model.SessionStatusPayload{SessionID: "other", Status: model.SessionStatusConfirmed})
	assert.Equal(t, model.SessionStatusPending, m.Session().Status)

	m.HandleStatusUpdate(model.SessionStatusPayload{SessionID: "s1", Status: model.SessionStatusConfirmed})
	assert.Equal(t, model.SessionStatusConfirmed, m.Session().Status)

	// confirmed -> confirmed с новым временем
	later := baseTime.Add(48 * time.Hour)
	m.HandleStatusUpdate(model.SessionStatusPayload{SessionID: "s1", Status: model.SessionStatusConfirmed, ScheduledFor: later})
	assert.True(t, m.Session().ScheduledFor.Equal(later))
}

func TestMachine_DuplicateRemoteEventsNotifyOnce(t *testing.T) {
	m := newTestMachine(model.SessionStatusConfirmed, "student", &fakeStore{}, baseTime)

	calls := 0
	m.OnChange(func(model.Session) { calls++ })

	for i := 0; i < 3; i++ {
		m.HandleStatusUpdate(model.SessionStatusPayload{SessionID: "s1", Status: model.SessionStatusInProgress})
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, model.SessionStatusInProgress, m.Session().Status)
}

func TestMachine_MarkEndedRemotely(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(model.SessionStatusInProgress, "student", store, baseTime.Add(time.Hour))

	m.MarkEndedRemotely(model.RoleTeacher)

	s := m.Session()
	assert.Equal(t, model.SessionStatusCompleted, s.Status)
	assert.Equal(t, model.RoleTeacher, s.EndedBy)
	assert.Empty(t, store.Calls())
}
