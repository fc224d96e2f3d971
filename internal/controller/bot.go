package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/notify"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// changeQueueSize сколько изменений ждут отправки в Telegram
const changeQueueSize = 64

// Callback data
const (
	DismissNotification = "dismiss:" // dismiss:<notification_id>
	MarkAllRead         = "mark_all_read"
)

// NotificationBot дублирует уведомления в чат Telegram.
// Кнопка "Скрыть" убирает уведомление из диспетчера, автоскрытие удаляет сообщение.
type NotificationBot struct {
	bot        *bot.Bot
	chatID     int64
	dispatcher *notify.Dispatcher
	logger     *zap.Logger

	changes chan notify.Change

	mu       sync.Mutex
	messages map[string]int // notificationID -> messageID
}

func NewNotificationBot(token string, chatID int64, dispatcher *notify.Dispatcher, logger *zap.Logger) (*NotificationBot, error) {
	nb := &NotificationBot{
		chatID:     chatID,
		dispatcher: dispatcher,
		logger:     logger,
		changes:    make(chan notify.Change, changeQueueSize),
		messages:   make(map[string]int),
	}

	b, err := bot.New(token,
		bot.WithDefaultHandler(nb.handleDefault),
		bot.WithMiddlewares(nb.requireOwnChat),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	nb.bot = b
	return nb, nil
}

// RegisterHandlers регистрирует команды и callback-и, подписывается на диспетчер
func (nb *NotificationBot) RegisterHandlers(ctx context.Context) error {
	nb.bot.RegisterHandler(bot.HandlerTypeMessageText, "/notifications", bot.MatchTypeExact, nb.handleList)
	nb.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, DismissNotification, bot.MatchTypePrefix, nb.handleDismiss)
	nb.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, MarkAllRead, bot.MatchTypeExact, nb.handleMarkAllRead)

	nb.dispatcher.OnChange(nb.enqueue)

	_, err := nb.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "notifications", Description: "🔔 Active notifications"},
		},
	})
	if err != nil {
		nb.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}
	return nil
}

// Start блокирует до отмены контекста
func (nb *NotificationBot) Start(ctx context.Context) {
	nb.logger.Info("Starting notification bot", zap.Int64("chat_id", nb.chatID))
	go nb.drain(ctx, nb.handleChange)
	nb.bot.Start(ctx)
}

// enqueue вызывается диспетчером и не ждёт Telegram
func (nb *NotificationBot) enqueue(c notify.Change) {
	select {
	case nb.changes <- c:
	default:
		nb.logger.Warn("Telegram queue full, change dropped",
			zap.String("notification_id", c.Notification.ID),
			zap.String("kind", string(c.Kind)),
		)
	}
}

func (nb *NotificationBot) drain(ctx context.Context, handle func(context.Context, notify.Change)) {
	for {
		select {
		case c := <-nb.changes:
			handle(ctx, c)
		case <-ctx.Done():
			return
		}
	}
}

func (nb *NotificationBot) handleChange(ctx context.Context, c notify.Change) {
	switch c.Kind {
	case notify.ChangePublished:
		nb.send(ctx, c.Notification)
	case notify.ChangeDismissed, notify.ChangeExpired:
		nb.delete(ctx, c.Notification.ID)
	}
}

func (nb *NotificationBot) send(ctx context.Context, n model.Notification) {
	msg, err := nb.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      nb.chatID,
		Text:        FormatNotification(n),
		ReplyMarkup: dismissKeyboard(n.ID),
	})
	if err != nil {
		nb.logger.Error("Failed to mirror notification",
			zap.String("notification_id", n.ID),
			zap.Error(err),
		)
		return
	}

	nb.mu.Lock()
	nb.messages[n.ID] = msg.ID
	nb.mu.Unlock()
}

func (nb *NotificationBot) delete(ctx context.Context, notificationID string) {
	nb.mu.Lock()
	messageID, ok := nb.messages[notificationID]
	delete(nb.messages, notificationID)
	nb.mu.Unlock()
	if !ok {
		return
	}

	_, err := nb.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    nb.chatID,
		MessageID: messageID,
	})
	if err != nil {
		nb.logger.Warn("Failed to delete mirrored notification",
			zap.String("notification_id", notificationID),
			zap.Error(err),
		)
	}
}

func (nb *NotificationBot) handleDismiss(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	id, ok := ParseDismissData(update.CallbackQuery.Data)
	text := ""
	if !ok || !nb.dispatcher.Dismiss(id) {
		text = "Already dismissed"
		// Сообщение могло остаться после перезапуска
		nb.delete(ctx, id)
	}
	nb.answer(ctx, b, update.CallbackQuery.ID, text)
}

func (nb *NotificationBot) handleMarkAllRead(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	nb.dispatcher.MarkAllRead()
	nb.answer(ctx, b, update.CallbackQuery.ID, "✅ All read")
}

func (nb *NotificationBot) handleList(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	items := nb.dispatcher.List()

	params := &bot.SendMessageParams{
		ChatID: nb.chatID,
		Text:   FormatList(items),
	}
	if len(items) > 0 {
		params.ReplyMarkup = listKeyboard(items)
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		nb.logger.Error("Failed to send notification list", zap.Error(err))
	}
}

func (nb *NotificationBot) handleDefault(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message != nil {
		nb.logger.Debug("Unhandled message", zap.Int64("chat_id", update.Message.Chat.ID))
	}
}

func (nb *NotificationBot) answer(ctx context.Context, b *bot.Bot, callbackID, text string) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		nb.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}

// ParseDismissData извлекает ID уведомления из callback data
func ParseDismissData(data string) (string, bool) {
	id, ok := strings.CutPrefix(data, DismissNotification)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// FormatNotification текст сообщения для одного уведомления
func FormatNotification(n model.Notification) string {
	return n.Title + "\n\n" + n.Body
}

// FormatList сводка активных уведомлений
func FormatList(items []model.Notification) string {
	if len(items) == 0 {
		return "🔕 No active notifications"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔔 Active notifications: %d\n", len(items))
	for _, n := range items {
		marker := "•"
		if !n.Read {
			marker = "🆕"
		}
		fmt.Fprintf(&sb, "\n%s %s · %s", marker, n.Title, n.CreatedAt.Local().Format("15:04"))
	}
	return sb.String()
}
