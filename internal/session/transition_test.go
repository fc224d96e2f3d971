package session

import (
	"testing"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

func newSession(status model.SessionStatus) model.Session {
	return model.Session{
		ID:           "s1",
		TeacherID:    "teacher",
		StudentID:    "student",
		Skill:        "Go",
		ScheduledFor: baseTime,
		Duration:     60,
		Status:       status,
	}
}

func local(action Action, actor model.Role, at time.Time) Event {
	return Event{Action: action, Origin: OriginLocal, Actor: actor, At: at}
}

func TestApply_AcceptOnlyByTeacher(t *testing.T) {
	s := newSession(model.SessionStatusPending)

	_, err := Apply(s, local(ActionAccept, model.RoleStudent, baseTime.Add(-time.Hour)))
	require.ErrorIs(t, err, ErrForbidden)

	next, err := Apply(s, local(ActionAccept, model.RoleTeacher, baseTime.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, next.Status)
	assert.Equal(t, model.SessionStatusPending, s.Status, "input must not be mutated")
}

func TestApply_RejectKeepsReason(t *testing.T) {
	ev := local(ActionReject, model.RoleTeacher, baseTime.Add(-time.Hour))
	ev.Reason = "busy"

	next, err := Apply(newSession(model.SessionStatusPending), ev)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusRejected, next.Status)
	assert.Equal(t, "busy", next.Reason)
}

func TestApply_CancelByEitherParticipant(t *testing.T) {
	for _, status := range []model.SessionStatus{model.SessionStatusPending, model.SessionStatusConfirmed} {
		for _, role := range []model.Role{model.RoleTeacher, model.RoleStudent} {
			next, err := Apply(newSession(status), local(ActionCancel, role, baseTime.Add(-time.Hour)))
			require.NoError(t, err, "%s by %s", status, role)
			assert.Equal(t, model.SessionStatusCancelled, next.Status)
		}
	}

	_, err := Apply(newSession(model.SessionStatusInProgress), local(ActionCancel, model.RoleStudent, baseTime))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApply_NonParticipantRejected(t *testing.T) {
	_, err := Apply(newSession(model.SessionStatusPending), local(ActionCancel, model.RoleNone, baseTime))
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestApply_TerminalStatesAreFinal(t *testing.T) {
	for _, status := range []model.SessionStatus{
		model.SessionStatusCompleted,
		model.SessionStatusCancelled,
		model.SessionStatusRejected,
	} {
		for _, action := range []Action{ActionAccept, ActionCancel, ActionStart, ActionEnd} {
			s := newSession(status)
			_, err := Apply(s, local(action, model.RoleTeacher, baseTime))
			require.ErrorIs(t, err, ErrTerminal, "%s from %s", action, status)
		}
	}
}

func TestApply_StartWindow(t *testing.T) {
	s := newSession(model.SessionStatusConfirmed)

	_, err := Apply(s, local(ActionStart, model.RoleStudent, baseTime.Add(-16*time.Minute)))
	require.ErrorIs(t, err, ErrOutsideStartWindow)

	_, err = Apply(s, local(ActionStart, model.RoleStudent, baseTime.Add(16*time.Minute)))
	require.ErrorIs(t, err, ErrOutsideStartWindow)

	at := baseTime.Add(-15 * time.Minute)
	next, err := Apply(s, local(ActionStart, model.RoleStudent, at))
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, next.Status)
	require.NotNil(t, next.StartedAt)
	assert.True(t, next.StartedAt.Equal(at))
}

func TestApply_EndComputesDurationAndNotes(t *testing.T) {
	started := baseTime
	s := newSession(model.SessionStatusInProgress)
	s.StartedAt = &started

	ev := local(ActionEnd, model.RoleTeacher, baseTime.Add(45*time.Minute+10*time.Second))
	ev.EndedBy = model.RoleTeacher
	ev.Notes = "  covered goroutines  "

	next, err := Apply(s, ev)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, next.Status)
	assert.Equal(t, 46, next.ActualDuration)
	assert.Equal(t, model.RoleTeacher, next.EndedBy)
	assert.Equal(t, "covered goroutines", next.TeacherNotes)
	assert.Empty(t, next.StudentNotes)
	require.NotNil(t, next.EndedAt)
}

func TestApply_RemoteDuplicateIsNoop(t *testing.T) {
	s := newSession(model.SessionStatusConfirmed)
	s.UpdatedAt = baseTime.Add(-time.Hour)

	ev, ok := EventFromStatus(model.SessionStatusConfirmed, baseTime, "")
	require.True(t, ok)

	next, err := Apply(s, ev)
	require.NoError(t, err)
	assert.Equal(t, s, next)
}

func TestApply_RemoteEndFromConfirmedSetsStartFirst(t *testing.T) {
	s := newSession(model.SessionStatusConfirmed)
	at := baseTime.Add(30 * time.Minute)

	next, err := Apply(s, Event{Action: ActionEnd, Origin: OriginRemote, At: at, EndedBy: model.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, next.Status)
	require.NotNil(t, next.StartedAt)
	require.NotNil(t, next.EndedAt)
	assert.False(t, next.EndedAt.Before(*next.StartedAt))
	assert.Equal(t, model.RoleTeacher, next.EndedBy)
}

func TestApply_RemoteStartIgnoresWindow(t *testing.T) {
	s := newSession(model.SessionStatusConfirmed)
	next, err := Apply(s, Event{Action: ActionStart, Origin: OriginRemote, At: baseTime.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, next.Status)
}

func TestApply_Reschedule(t *testing.T) {
	s := newSession(model.SessionStatusConfirmed)
	now := baseTime.Add(-2 * time.Hour)

	ev := local(ActionReschedule, model.RoleStudent, now)
	ev.ScheduledFor = now.Add(-time.Minute)
	_, err := Apply(s, ev)
	require.ErrorIs(t, err, ErrScheduleInPast)

	ev.ScheduledFor = baseTime.Add(24 * time.Hour)
	ev.Reason = "conflict"
	next, err := Apply(s, ev)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, next.Status)
	assert.True(t, next.ScheduledFor.Equal(baseTime.Add(24*time.Hour)))
	assert.Equal(t, "conflict", next.Reason)
}

func TestApply_Review(t *testing.T) {
	s := newSession(model.SessionStatusCompleted)

	ev := local(ActionReview, model.RoleTeacher, baseTime)
	ev.Review = &model.Review{Rating: 5}
	_, err := Apply(s, ev)
	require.ErrorIs(t, err, ErrForbidden)

	ev.Actor = model.RoleStudent
	ev.Review = &model.Review{Rating: 6}
	_, err = Apply(s, ev)
	require.ErrorIs(t, err, ErrInvalidRating)

	ev.Review = &model.Review{Rating: 4, Feedback: " great ", WouldRecommend: true}
	next, err := Apply(s, ev)
	require.NoError(t, err)
	require.NotNil(t, next.Review)
	assert.Equal(t, "great", next.Review.Feedback)

	_, err = Apply(next, ev)
	require.ErrorIs(t, err, ErrReviewExists)
}

func TestApply_ReviewRequiresCompleted(t *testing.T) {
	ev := local(ActionReview, model.RoleStudent, baseTime)
	ev.Review = &model.Review{Rating: 3}
	_, err := Apply(newSession(model.SessionStatusInProgress), ev)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApply_UnknownAction(t *testing.T) {
	_, err := Apply(newSession(model.SessionStatusPending), local("archive", model.RoleTeacher, baseTime))
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestEventFromStatus_Pending(t *testing.T) {
	_, ok := EventFromStatus(model.SessionStatusPending, baseTime, "")
	assert.False(t, ok)
}
