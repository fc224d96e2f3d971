package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultHTTPTimeout = 30 * time.Second

// Client REST-клиент сервера занятий
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
	}
}

// WithHTTPClient подменяет http.Client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// CreateSession создаёт запрос на занятие (бронирование студентом)
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodPost, "/sessions", req)
}

// GetSession получает актуальное состояние занятия
func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodGet, sessionPath(id, ""), nil)
}

// ListSessions получает занятия пользователя, опционально по статусу
func (c *Client) ListSessions(ctx context.Context, status model.SessionStatus) ([]model.Session, error) {
	path := "/sessions"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var sessions []model.Session
	if err := c.do(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (c *Client) UpdateSession(ctx context.Context, id string, upd StatusUpdate) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodPut, sessionPath(id, "status"), upd)
}

func (c *Client) CancelSession(ctx context.Context, id string) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodPut, sessionPath(id, "cancel"), nil)
}

func (c *Client) StartSession(ctx context.Context, id string) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath(id, "start"), nil)
}

func (c *Client) EndSession(ctx context.Context, id string, req EndRequest) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath(id, "end"), req)
}

func (c *Client) SubmitReview(ctx context.Context, id string, review model.Review) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath(id, "review"), review)
}

func (c *Client) RescheduleSession(ctx context.Context, id string, req RescheduleRequest) (*model.Session, error) {
	return c.sessionCall(ctx, http.MethodPut, sessionPath(id, "reschedule"), req)
}

// GetRoomDetails получает параметры комнаты видеозвонка
func (c *Client) GetRoomDetails(ctx context.Context, id string) (*RoomDetails, error) {
	var room RoomDetails
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "room"), nil, &room); err != nil {
		return nil, fmt.Errorf("get room details: %w", err)
	}
	return &room, nil
}

func (c *Client) sessionCall(ctx context.Context, method, path string, body any) (*model.Session, error) {
	var s model.Session
	if err := c.do(ctx, method, path, body, &s); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Message = eb.Message
			if apiErr.Message == "" {
				apiErr.Message = eb.Error
			}
		}
		c.logger.Debug("API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
		)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sessionPath(id, action string) string {
	p := "/sessions/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}
