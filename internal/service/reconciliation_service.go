package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultMaxReconcileAttempts = 10
	reconcileBatchSize          = 50
)

// ReconciliationStore журнал неподтверждённых завершений
type ReconciliationStore interface {
	Record(ctx context.Context, sessionID, reason string) error
	ListPending(ctx context.Context, maxAttempts, limit int) ([]*model.Reconciliation, error)
	MarkAttempt(ctx context.Context, sessionID, lastError string) error
	MarkResolved(ctx context.Context, sessionID string, status model.SessionStatus) error
	GetBySessionID(ctx context.Context, sessionID string) (*model.Reconciliation, error)
}

// SessionBackend то, что сверке нужно от сервера
type SessionBackend interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	EndSession(ctx context.Context, id string, req api.EndRequest) (*model.Session, error)
}

// ReconciliationService сверяет с сервером занятия, чьё завершение не подтвердилось
type ReconciliationService struct {
	store       ReconciliationStore
	backend     SessionBackend
	maxAttempts int
	onResolved  func(model.Session)
	logger      *zap.Logger
}

func NewReconciliationService(store ReconciliationStore, backend SessionBackend, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		store:       store,
		backend:     backend,
		maxAttempts: DefaultMaxReconcileAttempts,
		logger:      logger,
	}
}

// OnResolved вызывается с итоговым состоянием занятия после сверки
func (s *ReconciliationService) OnResolved(fn func(model.Session)) {
	s.onResolved = fn
}

// Record ставит занятие в очередь на сверку
func (s *ReconciliationService) Record(ctx context.Context, sessionID, reason string) error {
	if err := s.store.Record(ctx, sessionID, reason); err != nil {
		return fmt.Errorf("record session %s: %w", sessionID, err)
	}
	s.logger.Info("Session queued for reconciliation",
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
	)
	return nil
}

// RunOnce обрабатывает одну пачку записей журнала
func (s *ReconciliationService) RunOnce(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx, s.maxAttempts, reconcileBatchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info("Reconciling sessions", zap.Int("count", len(pending)))

	for _, rec := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.reconcile(ctx, rec); err != nil {
			s.logger.Warn("Reconciliation attempt failed",
				zap.String("session_id", rec.SessionID),
				zap.Int("attempt", rec.Attempts+1),
				zap.Error(err),
			)
			if markErr := s.store.MarkAttempt(ctx, rec.SessionID, err.Error()); markErr != nil {
				s.logger.Error("Failed to mark reconciliation attempt", zap.Error(markErr))
			}
		}
	}
	return nil
}

func (s *ReconciliationService) reconcile(ctx context.Context, rec *model.Reconciliation) error {
	current, err := s.backend.GetSession(ctx, rec.SessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	// Сервер так и не получил end: повторяем его
	if current.Status == model.SessionStatusInProgress {
		req := api.EndRequest{}
		if current.StartedAt != nil {
			req.ActualDuration = session.ActualDuration(*current.StartedAt, rec.CreatedAt)
		}
		ended, err := s.backend.EndSession(ctx, rec.SessionID, req)
		if err != nil && !api.IsAlreadyApplied(err) {
			return fmt.Errorf("end session: %w", err)
		}
		if ended != nil {
			current = ended
		} else if current, err = s.backend.GetSession(ctx, rec.SessionID); err != nil {
			return fmt.Errorf("get session: %w", err)
		}
	}

	if !current.Status.IsTerminal() {
		return fmt.Errorf("session is still %s", current.Status)
	}

	if err := s.store.MarkResolved(ctx, rec.SessionID, current.Status); err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}

	s.logger.Info("Session reconciled",
		zap.String("session_id", rec.SessionID),
		zap.String("status", string(current.Status)),
	)
	if s.onResolved != nil {
		s.onResolved(*current)
	}
	return nil
}

// Lookup запись журнала по занятию; nil, если занятие в журнал не попадало
func (s *ReconciliationService) Lookup(ctx context.Context, sessionID string) (*model.Reconciliation, error) {
	return s.store.GetBySessionID(ctx, sessionID)
}
