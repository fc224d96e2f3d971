package controller

import (
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/go-telegram/bot/models"
)

// keyboardBuilder собирает inline клавиатуры уведомлений
type keyboardBuilder struct {
	rows [][]models.InlineKeyboardButton
}

func newKeyboard() *keyboardBuilder {
	return &keyboardBuilder{}
}

// row добавляет ряд, пустые ряды пропускаются
func (kb *keyboardBuilder) row(buttons ...models.InlineKeyboardButton) *keyboardBuilder {
	if len(buttons) > 0 {
		kb.rows = append(kb.rows, buttons)
	}
	return kb
}

func (kb *keyboardBuilder) build() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: kb.rows}
}

func button(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: callbackData}
}

func dismissKeyboard(notificationID string) *models.InlineKeyboardMarkup {
	return newKeyboard().
		row(button("✖️ Dismiss", DismissNotification+notificationID)).
		build()
}

// listKeyboard кнопка "прочитать всё" и по кнопке скрытия на каждое уведомление
func listKeyboard(items []model.Notification) *models.InlineKeyboardMarkup {
	kb := newKeyboard().row(button("✅ Mark all read", MarkAllRead))
	for _, n := range items {
		kb.row(button("✖️ "+n.Title, DismissNotification+n.ID))
	}
	return kb.build()
}
