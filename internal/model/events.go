package model

import "time"

// Имена событий транспортного канала
const (
	EventUsersOnline        = "users:online"
	EventUsersOnlineRequest = "users:online:request"
	EventUserOnline         = "user:online"
	EventUserOffline        = "user:offline"

	EventJoinConversation  = "join:conversation"
	EventLeaveConversation = "leave:conversation"

	EventSessionReminder     = "session:reminder"
	EventSessionRequest      = "sessionRequest"
	EventSessionStatusUpdate = "sessionStatusUpdate"
	EventSessionAccepted     = "sessionAccepted"
	EventSessionEnded        = "session:ended"
)

type UserPresencePayload struct {
	UserID string `json:"userId"`
}

type SessionReminderPayload struct {
	SessionID    string    `json:"sessionId"`
	Skill        string    `json:"skill"`
	TimeUntil    string    `json:"timeUntil"`
	ScheduledFor time.Time `json:"scheduledFor"`
}

type SessionRequestPayload struct {
	SessionID    string    `json:"sessionId"`
	Student      string    `json:"student"`
	Skill        string    `json:"skill"`
	ScheduledFor time.Time `json:"scheduledFor"`
	Duration     int       `json:"duration"`
	Message      string    `json:"message"`
}

type SessionStatusPayload struct {
	SessionID    string        `json:"sessionId"`
	Status       SessionStatus `json:"status"`
	Skill        string        `json:"skill"`
	ScheduledFor time.Time     `json:"scheduledFor"`
	Reason       string        `json:"reason"`
}

type SessionAcceptedPayload struct {
	SessionID       string    `json:"sessionId"`
	Skill           string    `json:"skill"`
	TeacherName     string    `json:"teacherName"`
	ScheduledFor    time.Time `json:"scheduledFor"`
	Duration        int       `json:"duration"`
	CreditsDeducted int       `json:"creditsDeducted"`
}

type SessionEndedPayload struct {
	SessionID string `json:"sessionId"`
	EndedBy   Role   `json:"endedBy"`
}
