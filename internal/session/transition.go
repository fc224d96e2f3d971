package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
)

// StartWindow допустимое отклонение от запланированного времени для старта
const StartWindow = 15 * time.Minute

type Action string

const (
	ActionAccept     Action = "accept"
	ActionReject     Action = "reject"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	ActionStart      Action = "start"
	ActionEnd        Action = "end"
	ActionReview     Action = "review"
)

// Origin откуда пришло событие: действие пользователя или событие транспорта
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

type Event struct {
	Action Action
	Origin Origin
	Actor  model.Role
	At     time.Time

	ScheduledFor time.Time     // reschedule
	Reason       string        // reject, cancel, reschedule
	Notes        string        // end
	Review       *model.Review // review
	EndedBy      model.Role    // end
}

// targetStatus статус, в который переводит действие
func targetStatus(a Action) (model.SessionStatus, bool) {
	switch a {
	case ActionAccept, ActionReschedule:
		return model.SessionStatusConfirmed, true
	case ActionReject:
		return model.SessionStatusRejected, true
	case ActionCancel:
		return model.SessionStatusCancelled, true
	case ActionStart:
		return model.SessionStatusInProgress, true
	case ActionEnd, ActionReview:
		return model.SessionStatusCompleted, true
	}
	return "", false
}

// EventFromStatus строит удалённое событие по статусу из sessionStatusUpdate
func EventFromStatus(status model.SessionStatus, at time.Time, reason string) (Event, bool) {
	var action Action
	switch status {
	case model.SessionStatusConfirmed:
		action = ActionAccept
	case model.SessionStatusRejected:
		action = ActionReject
	case model.SessionStatusCancelled:
		action = ActionCancel
	case model.SessionStatusInProgress:
		action = ActionStart
	case model.SessionStatusCompleted:
		action = ActionEnd
	default:
		return Event{}, false
	}
	return Event{Action: action, Origin: OriginRemote, At: at, Reason: reason}, true
}

// Apply чистая функция перехода. Одинаково вызывается для действий
// пользователя и для событий, пришедших по транспорту.
func Apply(s model.Session, ev Event) (model.Session, error) {
	target, ok := targetStatus(ev.Action)
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownAction, ev.Action)
	}

	if ev.Origin == OriginRemote {
		// Повторная доставка: статус уже достигнут
		if s.Status == target && ev.Action != ActionReschedule && ev.Action != ActionReview {
			return s, nil
		}
	} else if ev.Actor == model.RoleNone {
		return s, ErrNotParticipant
	}

	if s.Status.IsTerminal() && ev.Action != ActionReview {
		return s, fmt.Errorf("%w: %s", ErrTerminal, s.Status)
	}

	switch ev.Action {
	case ActionAccept:
		if err := requireStatus(s, ev.Action, model.SessionStatusPending); err != nil {
			return s, err
		}
		if err := requireRole(ev, model.RoleTeacher); err != nil {
			return s, err
		}
		s.Status = model.SessionStatusConfirmed

	case ActionReject:
		if err := requireStatus(s, ev.Action, model.SessionStatusPending); err != nil {
			return s, err
		}
		if err := requireRole(ev, model.RoleTeacher); err != nil {
			return s, err
		}
		s.Status = model.SessionStatusRejected
		s.Reason = ev.Reason

	case ActionCancel:
		if err := requireStatus(s, ev.Action, model.SessionStatusPending, model.SessionStatusConfirmed); err != nil {
			return s, err
		}
		s.Status = model.SessionStatusCancelled
		s.Reason = ev.Reason

	case ActionReschedule:
		if err := requireStatus(s, ev.Action, model.SessionStatusConfirmed); err != nil {
			return s, err
		}
		if !ev.ScheduledFor.After(ev.At) {
			return s, ErrScheduleInPast
		}
		s.ScheduledFor = ev.ScheduledFor
		s.Reason = ev.Reason

	case ActionStart:
		if err := requireStatus(s, ev.Action, model.SessionStatusConfirmed); err != nil {
			return s, err
		}
		// Сервер уже проверил окно старта
		if ev.Origin == OriginLocal && !WithinStartWindow(ev.At, s.ScheduledFor) {
			return s, ErrOutsideStartWindow
		}
		s = markStarted(s, ev.At)

	case ActionEnd:
		if ev.Origin == OriginRemote && s.Status == model.SessionStatusConfirmed {
			// Второй участник начал и завершил занятие до того, как мы увидели старт
			s = markStarted(s, ev.At)
		}
		if err := requireStatus(s, ev.Action, model.SessionStatusInProgress); err != nil {
			return s, err
		}
		s = markCompleted(s, ev)

	case ActionReview:
		if err := requireStatus(s, ev.Action, model.SessionStatusCompleted); err != nil {
			return s, err
		}
		if ev.Origin == OriginLocal {
			if err := requireRole(ev, model.RoleStudent); err != nil {
				return s, err
			}
		}
		if s.Review != nil {
			return s, ErrReviewExists
		}
		if ev.Review == nil || ev.Review.Rating < 1 || ev.Review.Rating > 5 {
			return s, ErrInvalidRating
		}
		review := *ev.Review
		review.Feedback = strings.TrimSpace(review.Feedback)
		s.Review = &review
	}

	if !ev.At.IsZero() {
		s.UpdatedAt = ev.At
	}
	return s, nil
}

func requireStatus(s model.Session, a Action, allowed ...model.SessionStatus) error {
	for _, st := range allowed {
		if s.Status == st {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, a, s.Status)
}

func requireRole(ev Event, role model.Role) error {
	if ev.Origin == OriginRemote || ev.Actor == role {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrForbidden, ev.Action, role)
}

func markStarted(s model.Session, at time.Time) model.Session {
	s.Status = model.SessionStatusInProgress
	if s.StartedAt == nil {
		startedAt := at
		s.StartedAt = &startedAt
	}
	return s
}

func markCompleted(s model.Session, ev Event) model.Session {
	endedAt := ev.At
	s.Status = model.SessionStatusCompleted
	s.EndedAt = &endedAt
	s.EndedBy = ev.EndedBy
	if s.EndedBy == model.RoleNone {
		s.EndedBy = ev.Actor
	}
	if s.StartedAt != nil {
		s.ActualDuration = ActualDuration(*s.StartedAt, endedAt)
	}

	// Заметки пишутся один раз за завершение
	notes := strings.TrimSpace(ev.Notes)
	switch {
	case notes == "":
	case ev.Actor == model.RoleTeacher && s.TeacherNotes == "":
		s.TeacherNotes = notes
	case ev.Actor == model.RoleStudent && s.StudentNotes == "":
		s.StudentNotes = notes
	}
	return s
}
