package logger

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// TextSender отправляет простой текст в чат
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// AdminLister отдаёт id администраторов
type AdminLister interface {
	IDs(ctx context.Context) ([]int64, error)
}

// Notifier рассылает критические уведомления администраторам
type Notifier struct {
	sender TextSender
	admins AdminLister
	log    *zap.Logger
}

func NewNotifier(sender TextSender, admins AdminLister, log *zap.Logger) *Notifier {
	return &Notifier{sender: sender, admins: admins, log: log}
}

// NotifyAdmin отправляет уведомление всем админам. Ошибки доставки только логируются.
func (n *Notifier) NotifyAdmin(ctx context.Context, msg string) {
	n.log.Warn("admin alert", zap.String("msg", msg))
	if n.sender == nil || n.admins == nil {
		return
	}
	ids, err := n.admins.IDs(ctx)
	if err != nil {
		n.log.Error("admin list unavailable", zap.Error(err))
		return
	}
	for _, id := range ids {
		if err := n.sender.SendText(ctx, id, "[ALERT] "+msg); err != nil {
			n.log.Warn("admin alert not delivered", zap.Int64("admin_id", id), zap.Error(err))
		}
	}
}

// Recover ловит панику, логирует и уведомляет. Вызывается через defer.
func (n *Notifier) Recover(where string) {
	if r := recover(); r != nil {
		n.Panic(where, r)
	}
}

// Panic сообщает о перехваченной панике
func (n *Notifier) Panic(where string, r interface{}) {
	n.log.Error("panic recovered", zap.String("where", where), zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()))
	n.NotifyAdmin(context.Background(), fmt.Sprintf("Panic in %s: %v", where, r))
}
