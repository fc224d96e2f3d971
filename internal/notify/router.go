package notify

import (
	"strings"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/transport"
	"go.uber.org/zap"
)

// Router превращает входящие события канала в уведомления.
// Дубликаты не фильтруются: за это отвечает отправляющая сторона.
type Router struct {
	publish PublishFunc
	now     func() time.Time
	logger  *zap.Logger
}

func NewRouter(publish PublishFunc, logger *zap.Logger) *Router {
	return &Router{
		publish: publish,
		now:     time.Now,
		logger:  logger,
	}
}

func (r *Router) Attach(ch *transport.Channel) {
	transport.Subscribe(ch, model.EventSessionRequest, r.HandleSessionRequest)
	transport.Subscribe(ch, model.EventSessionAccepted, r.HandleSessionAccepted)
	transport.Subscribe(ch, model.EventSessionStatusUpdate, r.HandleStatusUpdate)
	transport.Subscribe(ch, model.EventSessionReminder, r.HandleReminder)
}

func (r *Router) HandleSessionRequest(p model.SessionRequestPayload) {
	r.publish(model.NotificationSessionRequest, model.NotificationPayload{
		SessionID:    p.SessionID,
		Skill:        p.Skill,
		PeerName:     p.Student,
		ScheduledFor: p.ScheduledFor,
		Duration:     p.Duration,
		Message:      p.Message,
	})
}

func (r *Router) HandleSessionAccepted(p model.SessionAcceptedPayload) {
	payload := model.NotificationPayload{
		SessionID:    p.SessionID,
		Skill:        p.Skill,
		PeerName:     p.TeacherName,
		ScheduledFor: p.ScheduledFor,
		Duration:     p.Duration,
		Credits:      p.CreditsDeducted,
	}
	r.publish(model.NotificationSessionAccepted, payload)
	if p.CreditsDeducted > 0 {
		r.publish(model.NotificationCreditDeduction, payload)
	}
}

func (r *Router) HandleStatusUpdate(p model.SessionStatusPayload) {
	var t model.NotificationType
	switch p.Status {
	case model.SessionStatusConfirmed:
		t = model.NotificationSessionConfirmed
	case model.SessionStatusCancelled:
		t = model.NotificationSessionCancelled
	case model.SessionStatusRejected:
		t = model.NotificationSessionRejected
	case model.SessionStatusInProgress:
		// второй участник уже в звонке
		t = model.NotificationSessionJoinReady
	case model.SessionStatusCompleted:
		t = model.NotificationSessionCompleted
	default:
		r.logger.Debug("Status update without notification", zap.String("status", string(p.Status)))
		return
	}
	r.publish(t, model.NotificationPayload{
		SessionID:    p.SessionID,
		Skill:        p.Skill,
		ScheduledFor: p.ScheduledFor,
		Reason:       p.Reason,
	})
}

func (r *Router) HandleReminder(p model.SessionReminderPayload) {
	r.publish(ReminderKind(p.TimeUntil, p.ScheduledFor.Sub(r.now())), model.NotificationPayload{
		SessionID:    p.SessionID,
		Skill:        p.Skill,
		ScheduledFor: p.ScheduledFor,
		TimeUntil:    p.TimeUntil,
	})
}

// ReminderKind тип напоминания по тексту сервера, иначе по оставшемуся времени
func ReminderKind(timeUntil string, remaining time.Duration) model.NotificationType {
	s := strings.ToLower(strings.TrimSpace(timeUntil))
	switch {
	case strings.HasPrefix(s, "15"):
		return model.NotificationReminder15Minutes
	case strings.HasPrefix(s, "1 hour"), s == "1h", s == "60 minutes":
		return model.NotificationReminder1Hour
	case strings.HasPrefix(s, "24"), strings.Contains(s, "day"), strings.Contains(s, "tomorrow"):
		return model.NotificationReminder24Hours
	}

	switch {
	case remaining <= 15*time.Minute:
		return model.NotificationReminder15Minutes
	case remaining <= time.Hour:
		return model.NotificationReminder1Hour
	}
	return model.NotificationReminder24Hours
}
