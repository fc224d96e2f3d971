package model

import "time"

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"     // Ожидает ответа учителя
	SessionStatusConfirmed  SessionStatus = "confirmed"   // Подтверждено
	SessionStatusInProgress SessionStatus = "in_progress" // Идёт звонок
	SessionStatusCompleted  SessionStatus = "completed"   // Завершено
	SessionStatusCancelled  SessionStatus = "cancelled"   // Отменено
	SessionStatusRejected   SessionStatus = "rejected"    // Отклонено учителем
)

// IsTerminal возвращает true для статусов, из которых нет переходов
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusRejected:
		return true
	}
	return false
}

// Valid проверяет, что статус известен
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusConfirmed, SessionStatusInProgress,
		SessionStatusCompleted, SessionStatusCancelled, SessionStatusRejected:
		return true
	}
	return false
}

// Role роль участника в занятии
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleNone    Role = ""
)

type Review struct {
	Rating         int    `json:"rating"` // 1..5
	Feedback       string `json:"feedback"`
	WouldRecommend bool   `json:"wouldRecommend"`
}

type Session struct {
	ID           string        `json:"id"`
	TeacherID    string        `json:"teacherId"`
	StudentID    string        `json:"studentId"`
	Skill        string        `json:"skill"`
	ScheduledFor time.Time     `json:"scheduledFor"`
	Duration     int           `json:"duration"` // в минутах
	Status       SessionStatus `json:"status"`

	RequestMessage string  `json:"message,omitempty"`
	TeacherNotes   string  `json:"teacherNotes,omitempty"`
	StudentNotes   string  `json:"studentNotes,omitempty"`
	Review         *Review `json:"review,omitempty"`

	RoomID         string     `json:"roomId,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	EndedBy        Role       `json:"endedBy,omitempty"`
	ActualDuration int        `json:"actualDuration,omitempty"` // в минутах
	Reason         string     `json:"reason,omitempty"`         // причина отмены/отказа/переноса

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoleOf определяет роль пользователя в занятии
func (s *Session) RoleOf(userID string) Role {
	switch userID {
	case "":
		return RoleNone
	case s.TeacherID:
		return RoleTeacher
	case s.StudentID:
		return RoleStudent
	}
	return RoleNone
}

// Counterpart возвращает ID второго участника
func (s *Session) Counterpart(userID string) string {
	if userID == s.TeacherID {
		return s.StudentID
	}
	return s.TeacherID
}

// EndsAt плановое время окончания
func (s *Session) EndsAt() time.Time {
	return s.ScheduledFor.Add(time.Duration(s.Duration) * time.Minute)
}
