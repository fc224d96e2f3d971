package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReconciliationRepository журнал занятий, ожидающих сверки с сервером
type ReconciliationRepository struct {
	*base.Repository
}

func NewReconciliationRepository(pool *pgxpool.Pool) *ReconciliationRepository {
	return &ReconciliationRepository{Repository: base.NewRepository(pool)}
}

// Record добавляет занятие в журнал; повторная запись снова делает его активным
func (r *ReconciliationRepository) Record(ctx context.Context, sessionID, reason string) error {
	query := `
		INSERT INTO session_reconciliations (session_id, reason)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE
		SET reason = EXCLUDED.reason,
		    resolved_at = NULL,
		    final_status = '',
		    updated_at = now()
	`

	if _, err := r.ExecAffected(ctx, query, sessionID, reason); err != nil {
		return fmt.Errorf("record reconciliation: %w", err)
	}
	return nil
}

const reconciliationColumns = `id, session_id, reason, attempts, last_error, final_status, created_at, updated_at, resolved_at`

func scanReconciliation(row pgx.Row) (*model.Reconciliation, error) {
	var rec model.Reconciliation
	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Reason,
		&rec.Attempts,
		&rec.LastError,
		&rec.FinalStatus,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetBySessionID получает запись по ID занятия
func (r *ReconciliationRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Reconciliation, error) {
	query := `SELECT ` + reconciliationColumns + ` FROM session_reconciliations WHERE session_id = $1`

	rec, err := scanReconciliation(r.QueryRow(ctx, query, sessionID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reconciliation: %w", err)
	}
	return rec, nil
}

// ListPending незакрытые записи с числом попыток меньше maxAttempts
func (r *ReconciliationRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]*model.Reconciliation, error) {
	query := `
		SELECT ` + reconciliationColumns + `
		FROM session_reconciliations
		WHERE resolved_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2
	`

	recs, err := base.QueryAll(ctx, r.Repository, scanReconciliation, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reconciliations: %w", err)
	}
	return recs, nil
}

// MarkAttempt увеличивает счётчик попыток
func (r *ReconciliationRepository) MarkAttempt(ctx context.Context, sessionID, lastError string) error {
	query := `
		UPDATE session_reconciliations
		SET attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE session_id = $1
	`

	if _, err := r.ExecAffected(ctx, query, sessionID, lastError); err != nil {
		return fmt.Errorf("mark reconciliation attempt: %w", err)
	}
	return nil
}

// MarkResolved закрывает запись с итоговым статусом сервера
func (r *ReconciliationRepository) MarkResolved(ctx context.Context, sessionID string, status model.SessionStatus) error {
	query := `
		UPDATE session_reconciliations
		SET resolved_at = now(), final_status = $2, updated_at = now()
		WHERE session_id = $1 AND resolved_at IS NULL
	`

	err := r.ExecOne(ctx, query, sessionID, status)
	if errors.Is(err, base.ErrNoRowsAffected) {
		return fmt.Errorf("reconciliation for session %s not found", sessionID)
	}
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	return nil
}
