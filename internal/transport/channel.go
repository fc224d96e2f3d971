package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"go.uber.org/zap"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// Handler обработчик входящего события
type Handler func(data json.RawMessage)

type HandlerID uint64

type handlerEntry struct {
	id HandlerID
	fn Handler
}

type stateEntry struct {
	id HandlerID
	fn func(State)
}

// Channel одно авторизованное соединение с автоматическим переподключением.
// Обработчики вызываются из горутины чтения в порядке регистрации.
type Channel struct {
	url    string
	dialer Dialer
	policy ReconnectPolicy
	logger *zap.Logger

	mu            sync.Mutex
	state         State
	gen           uint64
	everConnected bool
	conn          Conn
	cancel        context.CancelFunc

	handlers        map[string][]handlerEntry
	nextID          HandlerID
	stateListeners  []stateEntry
	connectHooks    []func()
	disconnectHooks []func()

	writeMu sync.Mutex
}

func NewChannel(url string, dialer Dialer, policy ReconnectPolicy, logger *zap.Logger) *Channel {
	return &Channel{
		url:      url,
		dialer:   dialer,
		policy:   policy,
		logger:   logger,
		handlers: make(map[string][]handlerEntry),
	}
}

// Connect запускает соединение. Повторный вызов при активном соединении ничего не делает.
// Без credential канал остаётся в состоянии disconnected.
func (c *Channel) Connect(ctx context.Context, credential string) {
	if credential == "" {
		c.logger.Warn("No credential available, transport stays disconnected")
		return
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.everConnected = false
	c.state = StateConnecting
	listeners := c.stateListenersLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(StateConnecting)
	}
	go c.run(loopCtx, gen, credential)
}

// Close закрывает соединение и останавливает переподключение
func (c *Channel) Close() {
	c.mu.Lock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	prev := c.state
	c.state = StateDisconnected
	listeners := c.stateListenersLocked()
	hooks := c.disconnectHooksLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if prev == StateConnected {
		runHooks(hooks)
	}
	if prev != StateDisconnected {
		c.logger.Info("Transport closed")
		for _, fn := range listeners {
			fn(StateDisconnected)
		}
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// Reconnecting true, пока канал восстанавливает ранее установленное соединение
func (c *Channel) Reconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnecting && c.everConnected
}

// Send отправляет событие без подтверждения доставки; без соединения ничего не делает
func (c *Channel) Send(event string, payload any) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Debug("Dropped outbound event, transport not connected", zap.String("event", event))
		return
	}
	if err := c.write(conn, event, payload); err != nil {
		c.logger.Warn("Failed to send event", zap.String("event", event), zap.Error(err))
	}
}

// On регистрирует обработчик события
func (c *Channel) On(event string, h Handler) HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: c.nextID, fn: h})
	return c.nextID
}

// Off удаляет обработчик
func (c *Channel) Off(event string, id HandlerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[event]
	for i, e := range entries {
		if e.id == id {
			c.handlers[event] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// OnStateChange подписка на смену состояния соединения
func (c *Channel) OnStateChange(fn func(State)) HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.stateListeners = append(c.stateListeners, stateEntry{id: c.nextID, fn: fn})
	return c.nextID
}

// OffStateChange удаляет подписку на смену состояния
func (c *Channel) OffStateChange(id HandlerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.stateListeners {
		if e.id == id {
			c.stateListeners = append(c.stateListeners[:i:i], c.stateListeners[i+1:]...)
			return true
		}
	}
	return false
}

// OnConnect хуки выполняются после каждого (пере)подключения до чтения первого события
func (c *Channel) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectHooks = append(c.connectHooks, fn)
}

// OnDisconnect хуки выполняются при потере установленного соединения
func (c *Channel) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectHooks = append(c.disconnectHooks, fn)
}

// Subscribe регистрирует типизированный обработчик
func Subscribe[T any](c *Channel, event string, fn func(T)) HandlerID {
	return c.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			c.logger.Warn("Failed to decode event payload", zap.String("event", event), zap.Error(err))
			return
		}
		fn(v)
	})
}

func (c *Channel) run(ctx context.Context, gen uint64, credential string) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	for {
		conn, err := c.dialWithBackoff(ctx, header)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("Transport reconnect attempts exhausted", zap.Error(err))
			}
			c.setState(gen, StateDisconnected)
			return
		}

		if !c.attach(gen, conn) {
			_ = conn.Close()
			return
		}

		err = c.readLoop(conn)

		if !c.detach(gen, conn) {
			return
		}
		if ctx.Err() != nil {
			c.setState(gen, StateDisconnected)
			return
		}
		c.logger.Warn("Transport connection lost, reconnecting", zap.Error(err))
		c.setState(gen, StateConnecting)
	}
}

func (c *Channel) dialWithBackoff(ctx context.Context, header http.Header) (Conn, error) {
	maxAttempts := c.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := c.dialer.Dial(ctx, c.url, header)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Повтор с тем же токеном не поможет
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := c.policy.delay(attempt)
		c.logger.Warn("Transport dial failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", maxAttempts, lastErr)
}

// attach публикует соединение: хуки подключения, затем connected, затем запрос снимка присутствия
func (c *Channel) attach(gen uint64, conn Conn) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	hooks := make([]func(), len(c.connectHooks))
	copy(hooks, c.connectHooks)
	c.mu.Unlock()

	runHooks(hooks)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.everConnected = true
	c.mu.Unlock()

	c.setState(gen, StateConnected)
	c.logger.Info("Transport connected", zap.String("url", c.url))

	if err := c.write(conn, model.EventUsersOnlineRequest, nil); err != nil {
		c.logger.Warn("Failed to request presence snapshot", zap.Error(err))
	}
	return true
}

func (c *Channel) detach(gen uint64, conn Conn) bool {
	_ = conn.Close()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = nil
	hooks := c.disconnectHooksLocked()
	c.mu.Unlock()

	c.setState(gen, StateDisconnected)
	runHooks(hooks)
	return true
}

func (c *Channel) readLoop(conn Conn) error {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	c.mu.Lock()
	entries := make([]handlerEntry, len(c.handlers[env.Event]))
	copy(entries, c.handlers[env.Event])
	c.mu.Unlock()

	for _, e := range entries {
		c.invoke(env, e.fn)
	}
}

func (c *Channel) invoke(env Envelope, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Event handler panicked", zap.String("event", env.Event), zap.Any("panic", r))
		}
	}()
	fn(env.Data)
}

func (c *Channel) write(conn Conn, event string, payload any) error {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		env.Data = data
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func (c *Channel) setState(gen uint64, st State) {
	c.mu.Lock()
	if c.gen != gen || c.state == st {
		c.mu.Unlock()
		return
	}
	c.state = st
	listeners := c.stateListenersLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

func (c *Channel) stateListenersLocked() []func(State) {
	out := make([]func(State), len(c.stateListeners))
	for i, e := range c.stateListeners {
		out[i] = e.fn
	}
	return out
}

func (c *Channel) disconnectHooksLocked() []func() {
	out := make([]func(), len(c.disconnectHooks))
	copy(out, c.disconnectHooks)
	return out
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
