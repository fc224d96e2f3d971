package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
)

// MemoryReconciliationRepository журнал в памяти, когда БД не настроена
type MemoryReconciliationRepository struct {
	mu     sync.Mutex
	nextID int64
	items  map[string]*model.Reconciliation
	now    func() time.Time
}

func NewMemoryReconciliationRepository() *MemoryReconciliationRepository {
	return &MemoryReconciliationRepository{
		items: make(map[string]*model.Reconciliation),
		now:   time.Now,
	}
}

func (r *MemoryReconciliationRepository) Record(_ context.Context, sessionID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if rec, ok := r.items[sessionID]; ok {
		rec.Reason = reason
		rec.ResolvedAt = nil
		rec.FinalStatus = ""
		rec.UpdatedAt = now
		return nil
	}
	r.nextID++
	r.items[sessionID] = &model.Reconciliation{
		ID:        r.nextID,
		SessionID: sessionID,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (r *MemoryReconciliationRepository) GetBySessionID(_ context.Context, sessionID string) (*model.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryReconciliationRepository) ListPending(_ context.Context, maxAttempts, limit int) ([]*model.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Reconciliation
	for _, rec := range r.items {
		if rec.ResolvedAt == nil && rec.Attempts < maxAttempts {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryReconciliationRepository) MarkAttempt(_ context.Context, sessionID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[sessionID]
	if !ok {
		return fmt.Errorf("reconciliation for session %s not found", sessionID)
	}
	rec.Attempts++
	rec.LastError = lastError
	rec.UpdatedAt = r.now()
	return nil
}

func (r *MemoryReconciliationRepository) MarkResolved(_ context.Context, sessionID string, status model.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[sessionID]
	if !ok || rec.ResolvedAt != nil {
		return fmt.Errorf("reconciliation for session %s not found", sessionID)
	}
	now := r.now()
	rec.ResolvedAt = &now
	rec.FinalStatus = status
	rec.UpdatedAt = now
	return nil
}
