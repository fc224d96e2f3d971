package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/session"
	"go.uber.org/zap"
)

type threshold struct {
	before time.Duration
	kind   model.NotificationType
}

// От меньшего к большему: срабатывает только ближайший порог
var reminderThresholds = []threshold{
	{before: 15 * time.Minute, kind: model.NotificationReminder15Minutes},
	{before: time.Hour, kind: model.NotificationReminder1Hour},
	{before: 24 * time.Hour, kind: model.NotificationReminder24Hours},
}

// SessionLister источник подтверждённых занятий
type SessionLister interface {
	ListSessions(ctx context.Context, status model.SessionStatus) ([]model.Session, error)
}

// ReminderSource периодически проверяет пороги напоминаний.
// Каждый порог срабатывает один раз на занятие и время начала.
type ReminderSource struct {
	lister  SessionLister
	publish PublishFunc
	now     func() time.Time
	logger  *zap.Logger

	mu    sync.Mutex
	fired map[string]struct{}
}

func NewReminderSource(lister SessionLister, publish PublishFunc, logger *zap.Logger) *ReminderSource {
	return &ReminderSource{
		lister:  lister,
		publish: publish,
		now:     time.Now,
		logger:  logger,
		fired:   make(map[string]struct{}),
	}
}

// WithClock подменяет источник времени
func (r *ReminderSource) WithClock(now func() time.Time) *ReminderSource {
	r.now = now
	return r
}

// Tick загружает подтверждённые занятия и проверяет пороги
func (r *ReminderSource) Tick(ctx context.Context) error {
	sessions, err := r.lister.ListSessions(ctx, model.SessionStatusConfirmed)
	if err != nil {
		return fmt.Errorf("list confirmed sessions: %w", err)
	}

	now := r.now()
	active := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		active[s.ID] = struct{}{}
		r.Check(s, now)
	}
	r.prune(active)
	return nil
}

// Check публикует напоминания, пересечённые к моменту now
func (r *ReminderSource) Check(s model.Session, now time.Time) {
	if s.Status != model.SessionStatusConfirmed {
		return
	}
	remaining := session.TimeUntil(now, s.ScheduledFor)
	payload := model.NotificationPayload{
		SessionID:    s.ID,
		Skill:        s.Skill,
		ScheduledFor: s.ScheduledFor,
		Duration:     s.Duration,
	}

	if remaining <= 0 {
		if session.WithinStartWindow(now, s.ScheduledFor) && r.markFired(s, model.NotificationSessionJoinReady) {
			r.logger.Debug("Session join ready", zap.String("session_id", s.ID))
			r.publish(model.NotificationSessionJoinReady, payload)
		}
		return
	}

	for i, th := range reminderThresholds {
		if remaining > th.before {
			continue
		}
		// Более дальние пороги уже неактуальны
		for _, later := range reminderThresholds[i+1:] {
			r.markFired(s, later.kind)
		}
		if r.markFired(s, th.kind) {
			payload.TimeUntil = session.FormatTimeUntil(now, s.ScheduledFor)
			r.logger.Debug("Session reminder due", zap.String("session_id", s.ID), zap.String("kind", string(th.kind)))
			r.publish(th.kind, payload)
		}
		return
	}
}

func (r *ReminderSource) markFired(s model.Session, kind model.NotificationType) bool {
	key := firedKey(s, kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fired[key]; ok {
		return false
	}
	r.fired[key] = struct{}{}
	return true
}

func (r *ReminderSource) prune(active map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.fired {
		id := sessionIDFromKey(key)
		if _, ok := active[id]; !ok {
			delete(r.fired, key)
		}
	}
}

// Ключ включает время начала, поэтому перенос заново включает напоминания
func firedKey(s model.Session, kind model.NotificationType) string {
	return fmt.Sprintf("%s|%d|%s", s.ID, s.ScheduledFor.Unix(), kind)
}

func sessionIDFromKey(key string) string {
	id, _, _ := strings.Cut(key, "|")
	return id
}
