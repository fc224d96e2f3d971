package notify

import (
	"sync"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxRetained = 50

// Policy время жизни уведомлений
type Policy struct {
	StatusDelay   time.Duration // статусы занятий и списание кредитов
	ReminderDelay time.Duration // напоминания за 1 час и за сутки
	MaxRetained   int
}

func DefaultPolicy() Policy {
	return Policy{
		StatusDelay:   10 * time.Second,
		ReminderDelay: 30 * time.Second,
		MaxRetained:   DefaultMaxRetained,
	}
}

// AutoDismissAfter через сколько уведомление скрывается само; false, если только вручную
func (p Policy) AutoDismissAfter(t model.NotificationType) (time.Duration, bool) {
	switch t {
	case model.NotificationSessionRequest,
		model.NotificationSessionJoinReady,
		model.NotificationReminder15Minutes:
		return 0, false
	case model.NotificationReminder1Hour, model.NotificationReminder24Hours:
		return p.ReminderDelay, true
	}
	return p.StatusDelay, true
}

// PublishFunc передаётся источникам событий при создании
type PublishFunc func(t model.NotificationType, payload model.NotificationPayload) model.Notification

type ChangeKind string

const (
	ChangePublished ChangeKind = "published"
	ChangeDismissed ChangeKind = "dismissed"
	ChangeExpired   ChangeKind = "expired"
	ChangeRead      ChangeKind = "read"
)

type Change struct {
	Kind         ChangeKind
	Notification model.Notification
}

// Dispatcher список эфемерных уведомлений, новые первыми
type Dispatcher struct {
	mu        sync.Mutex
	items     []model.Notification
	timers    map[string]*time.Timer
	policy    Policy
	now       func() time.Time
	listeners []func(Change)
	logger    *zap.Logger
}

func NewDispatcher(policy Policy, logger *zap.Logger) *Dispatcher {
	if policy.MaxRetained <= 0 {
		policy.MaxRetained = DefaultMaxRetained
	}
	return &Dispatcher{
		timers: make(map[string]*time.Timer),
		policy: policy,
		now:    time.Now,
		logger: logger,
	}
}

// Publish создаёт уведомление и ставит таймер автоскрытия
func (d *Dispatcher) Publish(t model.NotificationType, payload model.NotificationPayload) model.Notification {
	title, body := Render(t, payload)
	n := model.Notification{
		ID:        uuid.NewString(),
		Type:      t,
		Title:     title,
		Body:      body,
		Payload:   payload,
		CreatedAt: d.now(),
	}

	d.mu.Lock()
	d.items = append([]model.Notification{n}, d.items...)
	var dropped []model.Notification
	for len(d.items) > d.policy.MaxRetained {
		last := d.items[len(d.items)-1]
		d.items = d.items[:len(d.items)-1]
		d.stopTimerLocked(last.ID)
		dropped = append(dropped, last)
	}
	if delay, ok := d.policy.AutoDismissAfter(t); ok {
		id := n.ID
		d.timers[id] = time.AfterFunc(delay, func() { d.remove(id, ChangeExpired) })
	}
	listeners := d.listenersLocked()
	d.mu.Unlock()

	d.logger.Debug("Notification published",
		zap.String("id", n.ID),
		zap.String("type", string(t)),
		zap.String("session_id", payload.SessionID),
	)
	emit(listeners, Change{Kind: ChangePublished, Notification: n})
	for _, old := range dropped {
		emit(listeners, Change{Kind: ChangeExpired, Notification: old})
	}
	return n
}

// Dismiss скрывает уведомление по запросу пользователя
func (d *Dispatcher) Dismiss(id string) bool {
	return d.remove(id, ChangeDismissed)
}

func (d *Dispatcher) MarkRead(id string) bool {
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 || d.items[idx].Read {
		d.mu.Unlock()
		return false
	}
	d.items[idx].Read = true
	n := d.items[idx]
	listeners := d.listenersLocked()
	d.mu.Unlock()

	emit(listeners, Change{Kind: ChangeRead, Notification: n})
	return true
}

func (d *Dispatcher) MarkAllRead() {
	d.mu.Lock()
	var changed []model.Notification
	for i := range d.items {
		if !d.items[i].Read {
			d.items[i].Read = true
			changed = append(changed, d.items[i])
		}
	}
	listeners := d.listenersLocked()
	d.mu.Unlock()

	for _, n := range changed {
		emit(listeners, Change{Kind: ChangeRead, Notification: n})
	}
}

// Clear удаляет все уведомления и таймеры
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	for id := range d.timers {
		d.stopTimerLocked(id)
	}
	removed := d.items
	d.items = nil
	listeners := d.listenersLocked()
	d.mu.Unlock()

	for _, n := range removed {
		emit(listeners, Change{Kind: ChangeDismissed, Notification: n})
	}
}

// List копия списка, новые первыми
func (d *Dispatcher) List() []model.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Notification, len(d.items))
	copy(out, d.items)
	return out
}

func (d *Dispatcher) Get(id string) (model.Notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx := d.indexLocked(id); idx >= 0 {
		return d.items[idx], true
	}
	return model.Notification{}, false
}

func (d *Dispatcher) UnreadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, n := range d.items {
		if !n.Read {
			count++
		}
	}
	return count
}

func (d *Dispatcher) OnChange(fn func(Change)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Dispatcher) remove(id string, kind ChangeKind) bool {
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		return false
	}
	n := d.items[idx]
	d.items = append(d.items[:idx], d.items[idx+1:]...)
	d.stopTimerLocked(id)
	listeners := d.listenersLocked()
	d.mu.Unlock()

	emit(listeners, Change{Kind: kind, Notification: n})
	return true
}

func (d *Dispatcher) indexLocked(id string) int {
	for i, n := range d.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (d *Dispatcher) stopTimerLocked(id string) {
	if t, ok := d.timers[id]; ok {
		t.Stop()
		delete(d.timers, id)
	}
}

func (d *Dispatcher) listenersLocked() []func(Change) {
	out := make([]func(Change), len(d.listeners))
	copy(out, d.listeners)
	return out
}

func emit(listeners []func(Change), c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
