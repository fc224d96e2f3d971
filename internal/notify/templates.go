package notify

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
)

const timeLayout = "Mon, 02 Jan 15:04"

// Render заголовок и текст уведомления по шаблону типа
func Render(t model.NotificationType, p model.NotificationPayload) (string, string) {
	when := formatWhen(p.ScheduledFor)

	switch t {
	case model.NotificationSessionRequest:
		body := fmt.Sprintf("%s wants to learn %s on %s (%d min)", orSomeone(p.PeerName), p.Skill, when, p.Duration)
		if p.Message != "" {
			body += ": " + p.Message
		}
		return "📩 New session request", body
	case model.NotificationSessionAccepted:
		return "✅ Session accepted", fmt.Sprintf("%s accepted your %s session on %s", orSomeone(p.PeerName), p.Skill, when)
	case model.NotificationCreditDeduction:
		return "💳 Credits deducted", fmt.Sprintf("%d credits were deducted for your %s session", p.Credits, p.Skill)
	case model.NotificationSessionJoinReady:
		return "🎥 Session is ready", fmt.Sprintf("Your %s session has started. Join now", p.Skill)
	case model.NotificationSessionConfirmed:
		return "📅 Session confirmed", fmt.Sprintf("Your %s session on %s is confirmed", p.Skill, when)
	case model.NotificationSessionCancelled:
		return "❌ Session cancelled", withReason(fmt.Sprintf("Your %s session on %s was cancelled", p.Skill, when), p.Reason)
	case model.NotificationSessionRejected:
		return "🚫 Session declined", withReason(fmt.Sprintf("Your %s session request was declined", p.Skill), p.Reason)
	case model.NotificationSessionCompleted:
		return "🏁 Session completed", fmt.Sprintf("Your %s session has ended", p.Skill)
	case model.NotificationReminder15Minutes:
		return "⏰ Starting soon", fmt.Sprintf("Your %s session starts in %s", p.Skill, orDefault(p.TimeUntil, "15 minutes"))
	case model.NotificationReminder1Hour:
		return "⏰ Upcoming session", fmt.Sprintf("Your %s session starts in %s", p.Skill, orDefault(p.TimeUntil, "1 hour"))
	case model.NotificationReminder24Hours:
		return "📆 Session tomorrow", fmt.Sprintf("Your %s session is on %s", p.Skill, when)
	}
	return "🔔 Notification", p.Message
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "the scheduled time"
	}
	return t.Local().Format(timeLayout)
}

func withReason(body, reason string) string {
	if reason == "" {
		return body
	}
	return body + ": " + reason
}

func orSomeone(name string) string {
	return orDefault(name, "Someone")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
