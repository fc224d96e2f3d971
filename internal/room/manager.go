package room

import (
	"sync"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"go.uber.org/zap"
)

// Sender исходящая сторона транспортного канала
type Sender interface {
	Send(event string, payload any)
	IsConnected() bool
}

// Manager единственный слот членства в комнате.
// Без соединения все операции ничего не делают.
type Manager struct {
	mu      sync.Mutex
	sender  Sender
	current string
	logger  *zap.Logger
}

func NewManager(sender Sender, logger *zap.Logger) *Manager {
	return &Manager{
		sender: sender,
		logger: logger,
	}
}

// Current текущая комната или пустая строка
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// JoinRoom входит в комнату, покидая предыдущую. Повторный вход в ту же комнату игнорируется.
func (m *Manager) JoinRoom(id string) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == m.current {
		return false
	}
	return m.switchLocked(id)
}

// SwitchRoom покидает текущую комнату и входит в id, даже если это та же комната
func (m *Manager) SwitchRoom(id string) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switchLocked(id)
}

// LeaveRoom безусловно освобождает слот
func (m *Manager) LeaveRoom() {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current
	m.current = ""
	if prev != "" && m.sender.IsConnected() {
		m.sender.Send(model.EventLeaveConversation, prev)
		m.logger.Debug("Left room", zap.String("room", prev))
	}
}

// HandleDisconnect сервер теряет подписки вместе с соединением;
// после переподключения вызывающий код входит в комнату заново.
func (m *Manager) HandleDisconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
}

func (m *Manager) switchLocked(id string) bool {
	if !m.sender.IsConnected() {
		m.logger.Debug("Room join skipped, transport not connected", zap.String("room", id))
		return false
	}
	if m.current != "" {
		m.sender.Send(model.EventLeaveConversation, m.current)
	}
	m.sender.Send(model.EventJoinConversation, id)
	m.logger.Debug("Joined room", zap.String("room", id), zap.String("previous", m.current))
	m.current = id
	return true
}
