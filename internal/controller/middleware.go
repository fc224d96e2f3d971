package controller

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// updateChatID чат, из которого пришло обновление; 0 если определить нельзя
func updateChatID(update *models.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat.ID
	}
	return 0
}

// requireOwnChat пропускает только обновления из настроенного чата
func (nb *NotificationBot) requireOwnChat(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := updateChatID(update)
		if chatID != nb.chatID {
			nb.logger.Warn("Update from foreign chat ignored", zap.Int64("chat_id", chatID))
			if update.CallbackQuery != nil {
				nb.answer(ctx, b, update.CallbackQuery.ID, "⛔ Not allowed")
			}
			return
		}
		next(ctx, b, update)
	}
}
