package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"stream-boost-bot/internal/conversation"
)

// Часть tgbotapi.BotAPI, через которую бот пишет в Telegram
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Sender доставляет ответы движка и служебные уведомления
type Sender struct {
	api API
	log *zap.Logger
}

func NewSender(api API, log *zap.Logger) *Sender {
	return &Sender{api: api, log: log}
}

// Deliver отправляет ответы по порядку. Если сообщение не удалось отредактировать,
// отправляет его заново.
func (s *Sender) Deliver(ctx context.Context, responses []conversation.Response, isAdmin bool) {
	for _, r := range responses {
		if ctx.Err() != nil {
			return
		}
		_, err := s.api.Send(render(r, isAdmin))
		if err == nil {
			continue
		}
		if r.EditMessageID != 0 && !r.MainMenu {
			if strings.Contains(err.Error(), "message is not modified") {
				continue
			}
			if _, err = s.api.Send(asNewMessage(r, isAdmin)); err == nil {
				continue
			}
		}
		s.log.Warn("send failed", zap.Int64("chat_id", r.ChatID), zap.Error(err))
	}
}

// SendText отправляет простой текст без разметки
func (s *Sender) SendText(_ context.Context, chatID int64, text string) error {
	_, err := s.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Сообщение пользователю вне диалога. В личном чате chat id совпадает с user id.
func (s *Sender) NotifyUser(_ context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := s.api.Send(msg)
	return err
}

// SendDocument отправляет файл с подписью
func (s *Sender) SendDocument(chatID int64, path, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	_, err := s.api.Send(doc)
	return err
}

// Answer закрывает «часики» на нажатой inline-кнопке
func (s *Sender) Answer(callbackID, text string) {
	if callbackID == "" {
		return
	}
	if _, err := s.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		s.log.Debug("callback answer failed", zap.Error(err))
	}
}
