package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stream-boost-bot/internal/conversation"
	"stream-boost-bot/internal/db"
)

// Входящее обновление Telegram в виде, понятном движку
type inbound struct {
	update     conversation.Update
	text       string
	callbackID string
	// Кнопка не распознана (старая клавиатура или чужой формат)
	stale bool
}

// decode разбирает update; ok == false для обновлений, которые бот не обрабатывает
func decode(u tgbotapi.Update) (inbound, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return inbound{callbackID: cq.ID, stale: true}, true
		}
		in := inbound{
			callbackID: cq.ID,
			update: conversation.Update{
				UserID:    cq.From.ID,
				ChatID:    cq.Message.Chat.ID,
				MessageID: cq.Message.MessageID,
				Kind:      conversation.KindButton,
				From:      userInfo(cq.From),
			},
		}
		cmd, err := conversation.DecodeCallback(cq.Data)
		if err != nil {
			in.stale = true
			return in, true
		}
		in.update.Command = cmd
		return in, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.From.IsBot || m.Chat == nil || !m.Chat.IsPrivate() || m.Text == "" {
			return inbound{}, false
		}
		return inbound{
			text: m.Text,
			update: conversation.Update{
				UserID:    m.From.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.MessageID,
				Kind:      conversation.KindText,
				Command:   conversation.DecodeText(m.Text),
				From:      userInfo(m.From),
			},
		}, true
	}
	return inbound{}, false
}

func userInfo(u *tgbotapi.User) db.UserInfo {
	return db.UserInfo{Username: u.UserName, FirstName: u.FirstName, LastName: u.LastName}
}
