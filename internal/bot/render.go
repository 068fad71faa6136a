package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stream-boost-bot/internal/conversation"
)

// render превращает ответ движка в сообщение Telegram. Клавиатуру главного меню
// нельзя прикрепить к редактируемому сообщению, поэтому такой ответ всегда новый.
func render(r conversation.Response, isAdmin bool) tgbotapi.Chattable {
	if r.EditMessageID != 0 && !r.MainMenu {
		edit := tgbotapi.NewEditMessageText(r.ChatID, r.EditMessageID, r.Text)
		edit.ParseMode = tgbotapi.ModeHTML
		if len(r.Inline) > 0 {
			kb := inlineKeyboard(r.Inline)
			edit.ReplyMarkup = &kb
		}
		return edit
	}

	msg := tgbotapi.NewMessage(r.ChatID, r.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	switch {
	case r.MainMenu:
		msg.ReplyMarkup = GetReplyKeyboard(isAdmin)
	case len(r.Inline) > 0:
		msg.ReplyMarkup = inlineKeyboard(r.Inline)
	}
	return msg
}

// Запасной вариант, когда отредактировать сообщение не удалось
func asNewMessage(r conversation.Response, isAdmin bool) tgbotapi.Chattable {
	r.EditMessageID = 0
	return render(r, isAdmin)
}
