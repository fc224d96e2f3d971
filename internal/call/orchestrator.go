package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"go.uber.org/zap"
)

const (
	DefaultEndTimeout = 10 * time.Second
	reconcileTimeout  = 5 * time.Second
)

type callSession struct {
	roomID        string
	handle        Handle
	joinedLocally bool
	endedByOther  bool
}

type Options struct {
	EndTimeout    time.Duration
	Reconciler    Reconciler
	OnExit        func(ExitReason)
	OnParticipant func(MediaEvent)
}

// Orchestrator владеет ресурсом видеозвонка одного занятия.
// Завершение может прийти из трёх источников, но выполняется один раз.
type Orchestrator struct {
	machine  SessionMachine
	provider Provider
	opts     Options
	logger   *zap.Logger

	mu    sync.Mutex
	phase Phase
	call  *callSession
	done  chan struct{}
}

func NewOrchestrator(machine SessionMachine, provider Provider, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.EndTimeout <= 0 {
		opts.EndTimeout = DefaultEndTimeout
	}
	return &Orchestrator{
		machine:  machine,
		provider: provider,
		opts:     opts,
		logger:   logger.With(zap.String("session_id", machine.Session().ID)),
		done:     make(chan struct{}),
	}
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Done закрывается, когда звонок окончательно завершён
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// JoinedLocally подтвердил ли клиент видеосвязи вход
func (o *Orchestrator) JoinedLocally() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.call != nil && o.call.joinedLocally
}

// NeedsConfirmation нужно ли спрашивать пользователя перед выходом
func (o *Orchestrator) NeedsConfirmation() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase == PhaseJoined && o.call != nil && !o.call.endedByOther
}

// Join стартует занятие при необходимости и захватывает ресурс звонка
func (o *Orchestrator) Join(ctx context.Context, displayName string) error {
	o.mu.Lock()
	switch o.phase {
	case PhaseJoining, PhaseJoined:
		o.mu.Unlock()
		return ErrAlreadyInCall
	case PhaseEnding, PhaseEnded:
		o.mu.Unlock()
		return ErrCallEnded
	}
	o.phase = PhaseJoining
	o.mu.Unlock()

	s := o.machine.Session()
	switch s.Status {
	case model.SessionStatusConfirmed:
		if err := o.machine.Start(ctx); err != nil {
			o.abortJoin()
			return err
		}
	case model.SessionStatusInProgress:
	default:
		o.abortJoin()
		return fmt.Errorf("%w: status %s", ErrNotJoinable, s.Status)
	}

	s = o.machine.Session()
	if s.RoomID == "" {
		o.abortJoin()
		return ErrNoRoom
	}

	if o.Phase() != PhaseJoining {
		// Занятие завершили, пока шёл start
		return ErrCallEnded
	}

	handle, err := o.provider.Acquire(ctx, s.ID, s.RoomID, displayName)
	if err != nil {
		o.abortJoin()
		o.logger.Error("Failed to acquire call resource", zap.String("room_id", s.RoomID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrAcquireFailed, err)
	}

	o.mu.Lock()
	if o.phase != PhaseJoining {
		// Звонок завершили, пока шло подключение
		o.mu.Unlock()
		o.dispose(handle)
		return ErrCallEnded
	}
	o.call = &callSession{roomID: s.RoomID, handle: handle}
	o.phase = PhaseJoined
	o.mu.Unlock()

	o.logger.Info("Call resource acquired", zap.String("room_id", s.RoomID))
	go o.watch(handle)
	return nil
}

// Leave завершение звонка пользователем
func (o *Orchestrator) Leave(notes string) error {
	return o.end(TriggerLocal, notes, "")
}

// HandleRemoteEnded обработчик session:ended. Не блокирует вызывающего.
func (o *Orchestrator) HandleRemoteEnded(p model.SessionEndedPayload) {
	if p.SessionID != o.machine.Session().ID {
		return
	}
	call, ok := o.beginEnding(TriggerRemote)
	if !ok {
		o.logger.Info("Remote end ignored, call already ending", zap.String("ended_by", string(p.EndedBy)))
		return
	}
	go o.finish(TriggerRemote, call, "", p.EndedBy)
}

// Close освобождает ресурс при уходе с экрана без завершения занятия
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.phase == PhaseEnding || o.phase == PhaseEnded {
		o.mu.Unlock()
		return
	}
	call := o.call
	o.call = nil
	o.phase = PhaseEnded
	close(o.done)
	o.mu.Unlock()

	if call != nil {
		o.dispose(call.handle)
	}
	o.logger.Info("Call orchestrator closed")
}

func (o *Orchestrator) end(trigger Trigger, notes string, endedBy model.Role) error {
	call, ok := o.beginEnding(trigger)
	if !ok {
		switch o.Phase() {
		case PhaseIdle:
			return ErrNotInCall
		case PhaseEnded:
			return ErrCallEnded
		}
		o.logger.Info("End trigger ignored, call already ending", zap.String("trigger", string(trigger)))
		return ErrEndingInProgress
	}
	o.finish(trigger, call, notes, endedBy)
	return nil
}

// beginEnding единственная точка входа в завершение
func (o *Orchestrator) beginEnding(trigger Trigger) (*callSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.phase {
	case PhaseJoining, PhaseJoined:
	case PhaseIdle:
		// Второй участник может завершить занятие, пока мы не в звонке
		if trigger != TriggerRemote {
			return nil, false
		}
	default:
		return nil, false
	}

	call := o.call
	if call != nil && trigger == TriggerRemote {
		call.endedByOther = true
	}
	o.phase = PhaseEnding
	return call, true
}

func (o *Orchestrator) finish(trigger Trigger, call *callSession, notes string, endedBy model.Role) {
	if call != nil {
		o.dispose(call.handle)
	}

	if trigger == TriggerRemote {
		o.machine.MarkEndedRemotely(endedBy)
	} else if status := o.machine.Session().Status; status.IsTerminal() {
		o.logger.Info("Session already finished, skipping end request", zap.String("status", string(status)))
	} else if err := o.finalize(notes); err != nil {
		sessionID := o.machine.Session().ID
		o.logger.Warn("End session not confirmed, will reconcile later", zap.Error(err))
		if o.opts.Reconciler != nil {
			ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
			if recErr := o.opts.Reconciler.Record(ctx, sessionID, err.Error()); recErr != nil {
				o.logger.Error("Failed to record reconciliation", zap.Error(recErr))
			}
			cancel()
		}
	}

	o.mu.Lock()
	o.call = nil
	o.phase = PhaseEnded
	close(o.done)
	o.mu.Unlock()

	reason := exitReasonFor(trigger)
	o.logger.Info("Call ended", zap.String("trigger", string(trigger)))
	if o.opts.OnExit != nil {
		o.opts.OnExit(reason)
	}
}

// finalize вызывает end с ограничением по времени, даже если запрос не уважает контекст
func (o *Orchestrator) finalize(notes string) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.EndTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- o.machine.End(ctx, notes)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrEndTimeout, o.opts.EndTimeout)
	}
}

func (o *Orchestrator) dispose(h Handle) {
	if h == nil {
		return
	}
	if err := h.Dispose(); err != nil {
		o.logger.Warn("Failed to dispose call resource", zap.Error(err))
	}
}

func (o *Orchestrator) abortJoin() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseJoining {
		o.phase = PhaseIdle
	}
}

func (o *Orchestrator) watch(h Handle) {
	events := h.Events()
	for {
		select {
		case <-o.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case MediaJoined:
				o.mu.Lock()
				if o.call != nil && o.call.handle == h {
					o.call.joinedLocally = true
				}
				o.mu.Unlock()
			case MediaLeft:
				_ = o.end(TriggerProvider, "", "")
				return
			case MediaParticipantJoined, MediaParticipantLeft:
				o.logger.Debug("Call participant event",
					zap.String("kind", string(ev.Kind)),
					zap.String("participant", ev.ParticipantID),
				)
				if o.opts.OnParticipant != nil {
					o.opts.OnParticipant(ev)
				}
			}
		}
	}
}
