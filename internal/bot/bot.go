package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"stream-boost-bot/internal/admin"
	"stream-boost-bot/internal/conversation"
)

const (
	queueLimit     = 16
	handleTimeout  = 30 * time.Second
	apologyText    = "Произошла ошибка, попробуйте ещё раз. Мы уже разбираемся."
	staleText      = "Кнопка устарела, откройте меню заново"
	queueFullText  = "Слишком много запросов, подождите немного"
	limiterMaxIdle = time.Hour
)

// Источник обновлений Telegram (long polling)
type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Conversation interface {
	Handle(ctx context.Context, upd conversation.Update) ([]conversation.Response, error)
	Abort(userID int64)
}

type AdminPanel interface {
	IsAdmin(ctx context.Context, userID int64) bool
	Handle(ctx context.Context, adminID int64, text string) admin.Reply
}

type Alerter interface {
	NotifyAdmin(ctx context.Context, msg string)
	Panic(where string, r interface{})
}

type Bot struct {
	updates Updates
	sender  *Sender
	engine  Conversation
	admin   AdminPanel
	alerts  Alerter
	limiter *RateLimiter
	queue   *dispatcher
	log     *zap.Logger
}

func New(updates Updates, sender *Sender, engine Conversation, panel AdminPanel, alerts Alerter, log *zap.Logger) *Bot {
	b := &Bot{
		updates: updates,
		sender:  sender,
		engine:  engine,
		admin:   panel,
		alerts:  alerts,
		limiter: NewRateLimiter(),
		log:     log,
	}
	b.queue = newDispatcher(queueLimit, b.onPanic)
	return b
}

// Run читает обновления до отмены ctx, затем дожидается обработки уже принятых
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.updates.GetUpdatesChan(u)

	cleanup := time.NewTicker(10 * time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			b.queue.Wait()
			return nil
		case <-cleanup.C:
			b.limiter.Cleanup(limiterMaxIdle)
		case update, ok := <-updates:
			if !ok {
				b.queue.Wait()
				return nil
			}
			b.accept(ctx, update)
		}
	}
}

// accept разбирает обновление и ставит его в очередь пользователя
func (b *Bot) accept(ctx context.Context, update tgbotapi.Update) {
	in, ok := decode(update)
	if !ok {
		return
	}
	if in.callbackID != "" {
		if in.stale {
			b.sender.Answer(in.callbackID, staleText)
			return
		}
		b.sender.Answer(in.callbackID, "")
	}
	userID := in.update.UserID
	if !b.queue.Submit(userID, func() { b.handle(ctx, in) }) {
		if err := b.sender.SendText(ctx, in.update.ChatID, queueFullText); err != nil {
			b.log.Debug("queue full notice failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
}

func (b *Bot) handle(parent context.Context, in inbound) {
	ctx, cancel := context.WithTimeout(parent, handleTimeout)
	defer cancel()

	userID := in.update.UserID
	isAdmin := b.admin.IsAdmin(ctx, userID)
	if !isAdmin && b.limiter.IsLimited(userID, in.update.Command) {
		return
	}

	if isAdmin && in.text != "" && admin.IsCommand(in.text) {
		b.handleAdmin(ctx, in)
		return
	}

	out, err := b.engine.Handle(ctx, in.update)
	if err != nil {
		b.log.Error("update failed", zap.Int64("user_id", userID), zap.Error(err))
		b.engine.Abort(userID)
		b.alerts.NotifyAdmin(ctx, "Ошибка обработки сообщения пользователя: "+err.Error())
		out = []conversation.Response{{ChatID: in.update.ChatID, Text: apologyText, MainMenu: true}}
	}
	b.sender.Deliver(ctx, out, isAdmin)
}

func (b *Bot) handleAdmin(ctx context.Context, in inbound) {
	reply := b.admin.Handle(ctx, in.update.UserID, in.text)
	chatID := in.update.ChatID
	if reply.File != "" {
		err := b.sender.SendDocument(chatID, reply.File, reply.Text)
		if err == nil {
			return
		}
		b.log.Error("send backup failed", zap.String("file", reply.File), zap.Error(err))
		reply.Text += "\nФайл отправить не удалось: " + err.Error()
	}
	if err := b.sender.SendText(ctx, chatID, reply.Text); err != nil {
		b.log.Warn("admin reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) onPanic(userID int64, r interface{}) {
	b.alerts.Panic("update handler", r)
	b.engine.Abort(userID)
	if err := b.sender.SendText(context.Background(), userID, apologyText); err != nil {
		b.log.Debug("apology failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
