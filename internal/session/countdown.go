package session

import (
	"fmt"
	"math"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
)

// TimeUntil оставшееся до начала время; отрицательное, если начало прошло
func TimeUntil(now, scheduledFor time.Time) time.Duration {
	return scheduledFor.Sub(now)
}

// WithinStartWindow проверяет окно ±StartWindow вокруг запланированного времени
func WithinStartWindow(now, scheduledFor time.Time) bool {
	d := TimeUntil(now, scheduledFor)
	return d <= StartWindow && d >= -StartWindow
}

// CanStart может ли занятие быть начато в момент now
func CanStart(s model.Session, now time.Time) bool {
	return s.Status == model.SessionStatusConfirmed && WithinStartWindow(now, s.ScheduledFor)
}

// CanJoin можно ли подключиться к звонку
func CanJoin(s model.Session, now time.Time) bool {
	return s.Status == model.SessionStatusInProgress || CanStart(s, now)
}

// ActualDuration длительность в минутах с округлением вверх
func ActualDuration(startedAt, endedAt time.Time) int {
	d := endedAt.Sub(startedAt)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

// FormatTimeUntil человекочитаемый отсчёт до начала
func FormatTimeUntil(now, scheduledFor time.Time) string {
	d := TimeUntil(now, scheduledFor)
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	}
	return "less than a minute"
}
