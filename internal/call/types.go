package call

import (
	"context"
	"errors"

	"github.com/Freeeeeet/skillswap_core/internal/model"
)

var (
	ErrAlreadyInCall    = errors.New("already in call")
	ErrNotJoinable      = errors.New("session is not joinable")
	ErrNoRoom           = errors.New("session has no room assigned")
	ErrAcquireFailed    = errors.New("failed to join video call")
	ErrCallEnded        = errors.New("call has ended")
	ErrNotInCall        = errors.New("not in call")
	ErrEndingInProgress = errors.New("call is already ending")
	ErrEndTimeout       = errors.New("end session request timed out")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseJoining
	PhaseJoined
	PhaseEnding
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseJoined:
		return "joined"
	case PhaseEnding:
		return "ending"
	case PhaseEnded:
		return "ended"
	}
	return "idle"
}

type MediaEventKind string

const (
	MediaJoined            MediaEventKind = "joined"
	MediaLeft              MediaEventKind = "left"
	MediaParticipantJoined MediaEventKind = "participant_joined"
	MediaParticipantLeft   MediaEventKind = "participant_left"
)

type MediaEvent struct {
	Kind          MediaEventKind
	ParticipantID string
}

// Handle захваченный ресурс видеозвонка
type Handle interface {
	Events() <-chan MediaEvent
	Dispose() error
}

// Provider внешний провайдер видеосвязи
type Provider interface {
	Acquire(ctx context.Context, sessionID, roomID, displayName string) (Handle, error)
}

// SessionMachine то, что оркестратору нужно от модели занятия
type SessionMachine interface {
	Session() model.Session
	Start(ctx context.Context) error
	End(ctx context.Context, notes string) error
	MarkEndedRemotely(endedBy model.Role)
}

// Reconciler запоминает занятия, чьё завершение не подтвердил сервер
type Reconciler interface {
	Record(ctx context.Context, sessionID, reason string) error
}

// Trigger источник завершения звонка
type Trigger string

const (
	TriggerLocal    Trigger = "local"    // пользователь нажал "завершить"
	TriggerRemote   Trigger = "remote"   // session:ended от второго участника
	TriggerProvider Trigger = "provider" // клиент видеосвязи сообщил о выходе
)

// ExitReason почему пользователь покинул экран звонка
type ExitReason string

const (
	ExitEndedLocally  ExitReason = "ended_locally"
	ExitEndedRemotely ExitReason = "ended_remotely"
	ExitProviderLeft  ExitReason = "provider_left"
)

func exitReasonFor(t Trigger) ExitReason {
	switch t {
	case TriggerRemote:
		return ExitEndedRemotely
	case TriggerProvider:
		return ExitProviderLeft
	}
	return ExitEndedLocally
}
