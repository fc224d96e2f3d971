package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/call"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/room"
	"github.com/Freeeeeet/skillswap_core/internal/session"
	"github.com/Freeeeeet/skillswap_core/internal/transport"
	"go.uber.org/zap"
)

// SessionAPI серверные операции, нужные открытому занятию
type SessionAPI interface {
	session.Persistence
	GetRoomDetails(ctx context.Context, id string) (*api.RoomDetails, error)
}

// Coordinator связывает модель занятия, оркестратор звонка и канал
type Coordinator struct {
	api        SessionAPI
	channel    *transport.Channel
	rooms      *room.Manager
	provider   call.Provider
	reconciler call.Reconciler
	userID     string
	endTimeout time.Duration
	logger     *zap.Logger
}

func NewCoordinator(
	sessionAPI SessionAPI,
	channel *transport.Channel,
	rooms *room.Manager,
	provider call.Provider,
	reconciler call.Reconciler,
	userID string,
	endTimeout time.Duration,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		api:        sessionAPI,
		channel:    channel,
		rooms:      rooms,
		provider:   provider,
		reconciler: reconciler,
		userID:     userID,
		endTimeout: endTimeout,
		logger:     logger,
	}
}

// ActiveSession открытое занятие: модель, звонок и подписки на канал
type ActiveSession struct {
	Machine *session.Machine
	Call    *call.Orchestrator

	channel   *transport.Channel
	rooms     *room.Manager
	statusSub transport.HandlerID
	endedSub  transport.HandlerID
	stateSub  transport.HandlerID
	closeOnce sync.Once
	closed    atomic.Bool
	exits     chan call.ExitReason
}

// Open загружает занятие с сервера и подписывает его на события канала
func (c *Coordinator) Open(ctx context.Context, sessionID string) (*ActiveSession, error) {
	s, err := c.api.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if s.RoleOf(c.userID) == model.RoleNone {
		return nil, fmt.Errorf("open session %s: %w", sessionID, session.ErrNotParticipant)
	}

	if s.RoomID == "" && s.Status == model.SessionStatusInProgress {
		details, err := c.api.GetRoomDetails(ctx, sessionID)
		switch {
		case err == nil:
			s.RoomID = details.RoomID
		case api.IsNotFound(err):
		default:
			c.logger.Warn("Failed to load room details", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	machine := session.NewMachine(*s, c.userID, c.api, c.logger)

	active := &ActiveSession{
		Machine: machine,
		channel: c.channel,
		rooms:   c.rooms,
		exits:   make(chan call.ExitReason, 1),
	}

	active.Call = call.NewOrchestrator(machine, c.provider, call.Options{
		EndTimeout: c.endTimeout,
		Reconciler: c.reconciler,
		OnExit: func(reason call.ExitReason) {
			active.exits <- reason
		},
		OnParticipant: func(ev call.MediaEvent) {
			c.logger.Info("Call participant changed",
				zap.String("session_id", sessionID),
				zap.String("kind", string(ev.Kind)),
				zap.String("participant", ev.ParticipantID),
			)
		},
	}, c.logger)

	active.statusSub = transport.Subscribe(c.channel, model.EventSessionStatusUpdate, machine.HandleStatusUpdate)
	active.endedSub = transport.Subscribe(c.channel, model.EventSessionEnded, active.Call.HandleRemoteEnded)

	if counterpart := s.Counterpart(c.userID); counterpart != "" {
		c.rooms.JoinRoom(counterpart)
		// После переподключения сервер не помнит подписку на комнату
		active.stateSub = c.channel.OnStateChange(func(st transport.State) {
			if st == transport.StateConnected && !active.closed.Load() {
				c.rooms.JoinRoom(counterpart)
			}
		})
	}

	c.logger.Info("Session opened",
		zap.String("session_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.String("role", string(machine.Role())),
	)
	return active, nil
}

// Exits причины выхода из звонка; пишется не более одного значения
func (a *ActiveSession) Exits() <-chan call.ExitReason {
	return a.exits
}

// Close отписывается от канала и освобождает звонок без завершения занятия
func (a *ActiveSession) Close() {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.Call.Close()
		a.channel.Off(model.EventSessionStatusUpdate, a.statusSub)
		a.channel.Off(model.EventSessionEnded, a.endedSub)
		if a.stateSub != 0 {
			a.channel.OffStateChange(a.stateSub)
		}
		a.rooms.LeaveRoom()
	})
}
