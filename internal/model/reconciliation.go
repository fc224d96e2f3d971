package model

import "time"

// Reconciliation занятие, завершение которого сервер не подтвердил
type Reconciliation struct {
	ID          int64         `json:"id"`
	SessionID   string        `json:"session_id"`
	Reason      string        `json:"reason"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error"`
	FinalStatus SessionStatus `json:"final_status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ResolvedAt  *time.Time    `json:"resolved_at"`
}

func (r *Reconciliation) Resolved() bool {
	return r.ResolvedAt != nil
}
