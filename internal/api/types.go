package api

import (
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
)

type CreateSessionRequest struct {
	TeacherID    string    `json:"teacherId"`
	Skill        string    `json:"skill"`
	ScheduledFor time.Time `json:"scheduledFor"`
	Duration     int       `json:"duration"`
	Message      string    `json:"message,omitempty"`
}

type StatusUpdate struct {
	Status model.SessionStatus `json:"status"`
	Reason string              `json:"reason,omitempty"`
}

type EndRequest struct {
	ActualDuration int    `json:"actualDuration"`
	Notes          string `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	NewScheduledFor time.Time `json:"newScheduledFor"`
	Reason          string    `json:"reason,omitempty"`
}

type RoomDetails struct {
	RoomID    string    `json:"roomId"`
	RoomURL   string    `json:"roomUrl"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
