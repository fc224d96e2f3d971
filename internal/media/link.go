package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/call"
	"go.uber.org/zap"
)

var ErrDisposed = errors.New("media handle already disposed")

// Opener открывает ссылку на комнату (браузер, вывод в терминал)
type Opener func(ctx context.Context, roomURL string) error

// RoomDetailsSource выдаёт ссылку на комнату, если её назначил сервер
type RoomDetailsSource interface {
	GetRoomDetails(ctx context.Context, sessionID string) (*api.RoomDetails, error)
}

// LinkProvider провайдер видеосвязи, работающий через ссылку на комнату внешнего сервиса
type LinkProvider struct {
	baseURL string
	open    Opener
	details RoomDetailsSource
	logger  *zap.Logger

	mu      sync.Mutex
	current *LinkHandle
}

func NewLinkProvider(baseURL string, open Opener, logger *zap.Logger) *LinkProvider {
	return &LinkProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		open:    open,
		logger:  logger,
	}
}

// WithRoomDetails берёт ссылку на комнату у сервера по ID занятия
func (p *LinkProvider) WithRoomDetails(src RoomDetailsSource) *LinkProvider {
	p.details = src
	return p
}

// RoomURL ссылка на комнату с отображаемым именем участника
func (p *LinkProvider) RoomURL(roomID, displayName string) string {
	u := p.baseURL + "/" + url.PathEscape(roomID)
	if displayName != "" {
		u += "#userInfo.displayName=" + url.QueryEscape(fmt.Sprintf("%q", displayName))
	}
	return u
}

func (p *LinkProvider) Acquire(ctx context.Context, sessionID, roomID, displayName string) (call.Handle, error) {
	if roomID == "" {
		return nil, fmt.Errorf("acquire: empty room id")
	}
	roomURL, err := p.resolve(ctx, sessionID, roomID, displayName)
	if err != nil {
		return nil, err
	}
	if p.open != nil {
		if err := p.open(ctx, roomURL); err != nil {
			return nil, fmt.Errorf("open room: %w", err)
		}
	}

	h := &LinkHandle{
		roomURL: roomURL,
		events:  make(chan call.MediaEvent, 8),
	}
	h.events <- call.MediaEvent{Kind: call.MediaJoined}

	p.mu.Lock()
	p.current = h
	p.mu.Unlock()

	p.logger.Info("Room opened", zap.String("room_id", roomID))
	return h, nil
}

// Current последний выданный ресурс, пока он не освобождён
func (p *LinkProvider) Current() *LinkHandle {
	p.mu.Lock()
	h := p.current
	p.mu.Unlock()
	if h == nil || h.Disposed() {
		return nil
	}
	return h
}

func (p *LinkProvider) resolve(ctx context.Context, sessionID, roomID, displayName string) (string, error) {
	if p.details == nil {
		return p.RoomURL(roomID, displayName), nil
	}
	details, err := p.details.GetRoomDetails(ctx, sessionID)
	if err != nil {
		if api.IsNotFound(err) {
			return p.RoomURL(roomID, displayName), nil
		}
		return "", fmt.Errorf("get room details: %w", err)
	}
	if details.RoomURL == "" {
		return p.RoomURL(roomID, displayName), nil
	}
	return details.RoomURL, nil
}

// LinkHandle ресурс звонка для LinkProvider
type LinkHandle struct {
	roomURL string

	mu       sync.Mutex
	disposed bool
	events   chan call.MediaEvent
}

func (h *LinkHandle) URL() string {
	return h.roomURL
}

func (h *LinkHandle) Events() <-chan call.MediaEvent {
	return h.events
}

// Hangup пользователь покинул комнату во внешнем клиенте
func (h *LinkHandle) Hangup() {
	h.emit(call.MediaEvent{Kind: call.MediaLeft})
}

// ParticipantJoined/ParticipantLeft события о втором участнике
func (h *LinkHandle) ParticipantJoined(id string) {
	h.emit(call.MediaEvent{Kind: call.MediaParticipantJoined, ParticipantID: id})
}

func (h *LinkHandle) ParticipantLeft(id string) {
	h.emit(call.MediaEvent{Kind: call.MediaParticipantLeft, ParticipantID: id})
}

func (h *LinkHandle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

func (h *LinkHandle) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return ErrDisposed
	}
	h.disposed = true
	close(h.events)
	return nil
}

func (h *LinkHandle) emit(ev call.MediaEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}
	select {
	case h.events <- ev:
	default:
	}
}
