package presence

import (
	"sort"
	"sync"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/transport"
	"go.uber.org/zap"
)

// Tracker множество пользователей онлайн.
// После каждого подключения инкрементальные события игнорируются до прихода снимка.
type Tracker struct {
	mu        sync.RWMutex
	online    map[string]struct{}
	synced    bool
	listeners []func([]string)
	logger    *zap.Logger
}

func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		online: make(map[string]struct{}),
		logger: logger,
	}
}

// Attach подписывает трекер на события канала
func (t *Tracker) Attach(ch *transport.Channel) {
	ch.OnConnect(t.Reset)
	ch.OnDisconnect(t.Reset)
	transport.Subscribe(ch, model.EventUsersOnline, t.HandleSnapshot)
	transport.Subscribe(ch, model.EventUserOnline, func(p model.UserPresencePayload) {
		t.HandleOnline(p.UserID)
	})
	transport.Subscribe(ch, model.EventUserOffline, func(p model.UserPresencePayload) {
		t.HandleOffline(p.UserID)
	})
}

// Reset очищает множество и ждёт нового снимка
func (t *Tracker) Reset() {
	t.mu.Lock()
	changed := len(t.online) > 0
	t.online = make(map[string]struct{})
	t.synced = false
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// HandleSnapshot полностью заменяет множество
func (t *Tracker) HandleSnapshot(userIDs []string) {
	online := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			online[id] = struct{}{}
		}
	}

	t.mu.Lock()
	t.online = online
	t.synced = true
	t.mu.Unlock()

	t.logger.Debug("Presence snapshot applied", zap.Int("online", len(online)))
	t.notify()
}

func (t *Tracker) HandleOnline(userID string) {
	t.applyIncrement(userID, true)
}

func (t *Tracker) HandleOffline(userID string) {
	t.applyIncrement(userID, false)
}

func (t *Tracker) applyIncrement(userID string, online bool) {
	if userID == "" {
		return
	}

	t.mu.Lock()
	if !t.synced {
		t.mu.Unlock()
		t.logger.Debug("Presence event before snapshot ignored",
			zap.String("user_id", userID),
			zap.Bool("online", online),
		)
		return
	}
	_, present := t.online[userID]
	if online == present {
		t.mu.Unlock()
		return
	}
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	t.mu.Unlock()

	t.notify()
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// Synced получен ли снимок после последнего подключения
func (t *Tracker) Synced() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.synced
}

// Online отсортированная копия множества
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onlineLocked()
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}

// OnChange подписка на изменения множества
func (t *Tracker) OnChange(fn func(online []string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Tracker) onlineLocked() []string {
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) notify() {
	t.mu.RLock()
	online := t.onlineLocked()
	listeners := make([]func([]string), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.RUnlock()

	for _, fn := range listeners {
		fn(online)
	}
}
