package model

import "time"

type NotificationType string

const (
	NotificationSessionRequest    NotificationType = "session_request"
	NotificationSessionAccepted   NotificationType = "session_accepted"
	NotificationCreditDeduction   NotificationType = "credit_deduction"
	NotificationSessionJoinReady  NotificationType = "session_join_ready"
	NotificationSessionConfirmed  NotificationType = "session_confirmed"
	NotificationSessionCancelled  NotificationType = "session_cancelled"
	NotificationSessionRejected   NotificationType = "session_rejected"
	NotificationSessionCompleted  NotificationType = "session_completed"
	NotificationReminder15Minutes NotificationType = "session_reminder_15m"
	NotificationReminder1Hour     NotificationType = "session_reminder_1h"
	NotificationReminder24Hours   NotificationType = "session_reminder_24h"
)

// NotificationPayload данные, подставляемые в шаблон уведомления
type NotificationPayload struct {
	SessionID    string    `json:"sessionId,omitempty"`
	Skill        string    `json:"skill,omitempty"`
	PeerName     string    `json:"peerName,omitempty"`
	ScheduledFor time.Time `json:"scheduledFor,omitempty"`
	Duration     int       `json:"duration,omitempty"`
	Credits      int       `json:"credits,omitempty"`
	Message      string    `json:"message,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	TimeUntil    string    `json:"timeUntil,omitempty"`
}

type Notification struct {
	ID        string              `json:"id"`
	Type      NotificationType    `json:"type"`
	Title     string              `json:"title"`
	Body      string              `json:"body"`
	Payload   NotificationPayload `json:"payload"`
	CreatedAt time.Time           `json:"createdAt"`
	Read      bool                `json:"read"`
}
