package session

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"go.uber.org/zap"
)

// Persistence сервер, который хранит занятия
type Persistence interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	UpdateSession(ctx context.Context, id string, upd api.StatusUpdate) (*model.Session, error)
	CancelSession(ctx context.Context, id string) (*model.Session, error)
	StartSession(ctx context.Context, id string) (*model.Session, error)
	EndSession(ctx context.Context, id string, req api.EndRequest) (*model.Session, error)
	SubmitReview(ctx context.Context, id string, review model.Review) (*model.Session, error)
	RescheduleSession(ctx context.Context, id string, req api.RescheduleRequest) (*model.Session, error)
}

// Machine клиентская модель одного занятия.
// Все изменения проходят через Apply: и действия пользователя, и события транспорта.
type Machine struct {
	mu        sync.Mutex
	current   model.Session
	userID    string
	store     Persistence
	now       func() time.Time
	logger    *zap.Logger
	listeners []func(model.Session)
}

func NewMachine(s model.Session, userID string, store Persistence, logger *zap.Logger) *Machine {
	return &Machine{
		current: s,
		userID:  userID,
		store:   store,
		now:     time.Now,
		logger:  logger.With(zap.String("session_id", s.ID)),
	}
}

// WithClock подменяет источник времени
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Session возвращает копию текущего состояния
func (m *Machine) Session() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Machine) ID() string {
	return m.Session().ID
}

// Role роль текущего пользователя
func (m *Machine) Role() model.Role {
	s := m.Session()
	return s.RoleOf(m.userID)
}

// OnChange регистрирует слушателя изменений состояния
func (m *Machine) OnChange(fn func(model.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Machine) Accept(ctx context.Context) error {
	return m.perform(ctx, ActionAccept, Event{}, func(ctx context.Context, s model.Session, _ model.Session) (*model.Session, error) {
		return m.store.UpdateSession(ctx, s.ID, api.StatusUpdate{Status: model.SessionStatusConfirmed})
	})
}

func (m *Machine) Reject(ctx context.Context, reason string) error {
	return m.perform(ctx, ActionReject, Event{Reason: reason}, func(ctx context.Context, s model.Session, _ model.Session) (*model.Session, error) {
		return m.store.UpdateSession(ctx, s.ID, api.StatusUpdate{Status: model.SessionStatusRejected, Reason: reason})
	})
}

func (m *Machine) Cancel(ctx context.Context, reason string) error {
	return m.perform(ctx, ActionCancel, Event{Reason: reason}, func(ctx context.Context, s model.Session, _ model.Session) (*model.Session, error) {
		return m.store.CancelSession(ctx, s.ID)
	})
}

func (m *Machine) Reschedule(ctx context.Context, at time.Time, reason string) error {
	return m.perform(ctx, ActionReschedule, Event{ScheduledFor: at, Reason: reason}, func(ctx context.Context, s model.Session, _ model.Session) (*model.Session, error) {
		return m.store.RescheduleSession(ctx, s.ID, api.RescheduleRequest{NewScheduledFor: at, Reason: reason})
	})
}

func (m *Machine) Start(ctx context.Context) error {
	return m.perform(ctx, ActionStart, Event{}, func(ctx context.Context, s model.Session, _ model.Session) (*model.Session, error) {
		return m.store.StartSession(ctx, s.ID)
	})
}

// End завершает занятие; notes сохраняются как заметки текущего участника
func (m *Machine) End(ctx context.Context, notes string) error {
	return m.perform(ctx, ActionEnd, Event{Notes: notes}, func(ctx context.Context, s model.Session, next model.Session) (*model.Session, error) {
		return m.store.EndSession(ctx, s.ID, api.EndRequest{ActualDuration: next.ActualDuration, Notes: notes})
	})
}

func (m *Machine) SubmitReview(ctx context.Context, review model.Review) error {
	return m.perform(ctx, ActionReview, Event{Review: &review}, func(ctx context.Context, s model.Session, _ model.Session) (*model.Session, error) {
		return m.store.SubmitReview(ctx, s.ID, review)
	})
}

// ApplyRemote применяет событие, полученное от второго участника или сервера.
// Возвращает true, если состояние изменилось.
func (m *Machine) ApplyRemote(ev Event) (bool, error) {
	ev.Origin = OriginRemote
	if ev.At.IsZero() {
		ev.At = m.now()
	}

	m.mu.Lock()
	prev := m.current
	next, err := Apply(prev, ev)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("Ignored remote session event",
			zap.String("action", string(ev.Action)),
			zap.String("status", string(prev.Status)),
			zap.Error(err),
		)
		return false, err
	}
	changed := next.Status != prev.Status || !next.ScheduledFor.Equal(prev.ScheduledFor)
	m.current = next
	listeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	if changed {
		m.logger.Info("Remote session event applied",
			zap.String("action", string(ev.Action)),
			zap.String("from", string(prev.Status)),
			zap.String("to", string(next.Status)),
		)
		notify(listeners, next)
	}
	return changed, nil
}

// HandleStatusUpdate обработчик sessionStatusUpdate
func (m *Machine) HandleStatusUpdate(p model.SessionStatusPayload) {
	if p.SessionID != m.ID() {
		return
	}
	if !p.Status.Valid() {
		m.logger.Warn("Unknown session status in update", zap.String("status", string(p.Status)))
		return
	}
	ev, ok := EventFromStatus(p.Status, m.now(), p.Reason)
	if !ok {
		return
	}
	if ev.Action == ActionAccept && !p.ScheduledFor.IsZero() {
		s := m.Session()
		if s.Status == model.SessionStatusConfirmed && !p.ScheduledFor.Equal(s.ScheduledFor) {
			// confirmed -> confirmed с новым временем: перенос
			ev = Event{Action: ActionReschedule, ScheduledFor: p.ScheduledFor, Reason: p.Reason}
		}
	}
	_, _ = m.ApplyRemote(ev)
}

// MarkEndedRemotely отражает завершение занятия вторым участником без запроса к серверу
func (m *Machine) MarkEndedRemotely(endedBy model.Role) {
	_, _ = m.ApplyRemote(Event{Action: ActionEnd, EndedBy: endedBy})
}

func (m *Machine) refetch(ctx context.Context, id string) *model.Session {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		m.logger.Warn("Failed to refetch session", zap.Error(err))
		return nil
	}
	return s
}

type persistFunc func(ctx context.Context, cur, next model.Session) (*model.Session, error)

func (m *Machine) perform(ctx context.Context, action Action, ev Event, call persistFunc) error {
	ev.Action = action
	ev.Origin = OriginLocal
	ev.At = m.now()

	cur := m.Session()
	ev.Actor = cur.RoleOf(m.userID)
	if action == ActionEnd {
		ev.EndedBy = ev.Actor
	}

	next, err := Apply(cur, ev)
	if err != nil {
		return &TransitionError{Action: action, Err: err}
	}

	projection, err := call(ctx, cur, next)
	if err != nil {
		if !api.IsAlreadyApplied(err) {
			m.logger.Warn("Session transition failed",
				zap.String("action", string(action)),
				zap.Error(err),
			)
			return &TransitionError{Action: action, Err: err, Retryable: api.IsRetryable(err)}
		}
		m.logger.Info("Session transition already applied on server",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		if action == ActionStart && next.RoomID == "" {
			// Ответа нет, а комната нужна звонку: берём её с сервера
			projection = m.refetch(ctx, cur.ID)
		}
	}

	m.mu.Lock()
	if m.current.Status != cur.Status {
		// Пока шёл запрос, пришло событие от второго участника
		ev.Origin = OriginRemote
		if merged, mergeErr := Apply(m.current, ev); mergeErr == nil {
			next = merged
		} else {
			next = m.current
		}
	}
	if projection != nil && next.RoomID == "" {
		next.RoomID = projection.RoomID
	}
	m.current = next
	listeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	m.logger.Info("Session transition applied",
		zap.String("action", string(action)),
		zap.String("status", string(next.Status)),
	)
	notify(listeners, next)
	return nil
}

func (m *Machine) snapshotListenersLocked() []func(model.Session) {
	out := make([]func(model.Session), len(m.listeners))
	copy(out, m.listeners)
	return out
}

func notify(listeners []func(model.Session), s model.Session) {
	for _, fn := range listeners {
		fn(s)
	}
}
