package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var start = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeLister struct {
	sessions []model.Session
	err      error
}

func (f *fakeLister) ListSessions(_ context.Context, status model.SessionStatus) ([]model.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Session
	for _, s := range f.sessions {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func confirmed(id string, at time.Time) model.Session {
	return model.Session{ID: id, Skill: "Go", ScheduledFor: at, Status: model.SessionStatusConfirmed}
}

func TestReminders_EachThresholdOnce(t *testing.T) {
	rec := &publishRecorder{}
	src := NewReminderSource(&fakeLister{}, rec.publish, zap.NewNop())
	s := confirmed("s1", start)

	for _, before := range []time.Duration{
		30 * time.Hour,
		23 * time.Hour,
		20 * time.Hour,
		59 * time.Minute,
		40 * time.Minute,
		14 * time.Minute,
		time.Minute,
		0,
		-time.Minute,
	} {
		src.Check(s, start.Add(-before))
	}

	assert.Equal(t, []model.NotificationType{
		model.NotificationReminder24Hours,
		model.NotificationReminder1Hour,
		model.NotificationReminder15Minutes,
		model.NotificationSessionJoinReady,
	}, rec.kinds())
}

func TestReminders_OnlyNearestThresholdWhenLate(t *testing.T) {
	rec := &publishRecorder{}
	src := NewReminderSource(&fakeLister{}, rec.publish, zap.NewNop())
	s := confirmed("s1", start)

	// Клиент запущен за 10 минут до начала
	src.Check(s, start.Add(-10*time.Minute))
	src.Check(s, start.Add(-5*time.Minute))

	assert.Equal(t, []model.NotificationType{model.NotificationReminder15Minutes}, rec.kinds())
	assert.Equal(t, "10m", rec.items[0].payload.TimeUntil)
}

func TestReminders_NoJoinReadyAfterWindow(t *testing.T) {
	rec := &publishRecorder{}
	src := NewReminderSource(&fakeLister{}, rec.publish, zap.NewNop())

	src.Check(confirmed("s1", start), start.Add(20*time.Minute))
	assert.Empty(t, rec.items)
}

func TestReminders_RescheduleRearms(t *testing.T) {
	rec := &publishRecorder{}
	src := NewReminderSource(&fakeLister{}, rec.publish, zap.NewNop())

	src.Check(confirmed("s1", start), start.Add(-10*time.Minute))
	moved := start.Add(24 * time.Hour)
	src.Check(confirmed("s1", moved), moved.Add(-10*time.Minute))

	assert.Len(t, rec.items, 2)
}

func TestReminders_TickUsesConfirmedAndPrunes(t *testing.T) {
	rec := &publishRecorder{}
	lister := &fakeLister{sessions: []model.Session{
		confirmed("s1", start.Add(10*time.Minute)),
		{ID: "s2", ScheduledFor: start.Add(10 * time.Minute), Status: model.SessionStatusPending},
	}}
	src := NewReminderSource(lister, rec.publish, zap.NewNop()).WithClock(func() time.Time { return start })

	require.NoError(t, src.Tick(context.Background()))
	require.NoError(t, src.Tick(context.Background()))
	assert.Len(t, rec.items, 1)
	assert.Equal(t, "s1", rec.items[0].payload.SessionID)

	// Занятие исчезло из списка: ключи очищаются
	lister.sessions = nil
	require.NoError(t, src.Tick(context.Background()))
	src.mu.Lock()
	assert.Empty(t, src.fired)
	src.mu.Unlock()
}

func TestReminders_TickError(t *testing.T) {
	src := NewReminderSource(&fakeLister{err: errors.New("offline")}, (&publishRecorder{}).publish, zap.NewNop())
	require.ErrorContains(t, src.Tick(context.Background()), "offline")
}
