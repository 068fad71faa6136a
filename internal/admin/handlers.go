package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/ledger"
	"stream-boost-bot/internal/logger"
)

// Кнопка админ-панели в главном меню
const PanelButton = "⚙️ Админ панель"

const helpText = `Команды администратора:
/admin_stats — статистика
/admin_payments — последние счета
/admin_add_balance <user_id> <сумма> — зачислить на баланс
/admin_set_balance <user_id> <сумма> — установить баланс
/admin_order <order_id> <completed|cancelled> — сменить статус заказа
/admin_add_admin <user_id> — добавить администратора
/admin_backup — резервная копия БД
/admin_restore <файл> — восстановить БД из копии (Postgres)`

// Ответ на команду администратора; File — путь к файлу для отправки документом
type Reply struct {
	Text string
	File string
}

type Handler struct {
	admins   *db.Admins
	users    *db.Users
	orders   *db.Orders
	payments *db.Payments
	ledger   *ledger.Ledger
	backups  *Backups
	log      *zap.Logger
	now      func() time.Time
}

func NewHandler(admins *db.Admins, users *db.Users, orders *db.Orders, payments *db.Payments,
	l *ledger.Ledger, backups *Backups, log *zap.Logger) *Handler {
	return &Handler{
		admins:   admins,
		users:    users,
		orders:   orders,
		payments: payments,
		ledger:   l,
		backups:  backups,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) IsAdmin(ctx context.Context, userID int64) bool {
	ok, err := h.admins.IsAdmin(ctx, userID)
	if err != nil {
		h.log.Error("admin check failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}

// Относится ли текст к админ-панели
func IsCommand(text string) bool {
	text = strings.TrimSpace(text)
	return text == PanelButton || strings.HasPrefix(text, "/admin")
}

// Handle выполняет команду администратора. Права проверяет вызывающий.
func (h *Handler) Handle(ctx context.Context, adminID int64, text string) Reply {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Reply{Text: helpText}
	}
	cmd, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	args := fields[1:]

	var reply Reply
	switch cmd {
	case "admin_stats":
		reply = h.handleStats(ctx)
	case "admin_payments":
		reply = h.handlePayments(ctx)
	case "admin_add_balance":
		reply = h.handleBalance(ctx, args, false)
	case "admin_set_balance":
		reply = h.handleBalance(ctx, args, true)
	case "admin_order":
		reply = h.handleOrder(ctx, args)
	case "admin_add_admin":
		reply = h.handleAddAdmin(ctx, adminID, args)
	case "admin_backup":
		reply = h.handleBackup(ctx)
	case "admin_restore":
		reply = h.handleRestore(ctx, args)
	default:
		return Reply{Text: helpText}
	}
	logger.LogAdminAction(h.log, adminID, cmd, strings.Join(args, " "))
	return reply
}

func (h *Handler) handleStats(ctx context.Context) Reply {
	users, err := h.users.Count(ctx)
	if err != nil {
		return h.failed("stats", err)
	}
	byStatus, err := h.orders.CountByStatus(ctx)
	if err != nil {
		return h.failed("stats", err)
	}
	now := h.now()
	year, month, day := now.Date()
	today, err := h.payments.SumPaid(ctx, time.Date(year, month, day, 0, 0, 0, 0, now.Location()), now)
	if err != nil {
		return h.failed("stats", err)
	}
	monthly, err := h.payments.SumPaid(ctx, now.AddDate(0, 0, -30), now)
	if err != nil {
		return h.failed("stats", err)
	}
	all, err := h.payments.SumPaid(ctx, time.Time{}, now)
	if err != nil {
		return h.failed("stats", err)
	}
	return Reply{Text: fmt.Sprintf(
		"Пользователей: %d\nЗаказы: в работе %d, выполнено %d, отменено %d\nПополнения: сегодня %s₽, месяц %s₽, всего %s₽",
		users, byStatus[db.OrderPending], byStatus[db.OrderCompleted], byStatus[db.OrderCancelled],
		today.StringFixed(2), monthly.StringFixed(2), all.StringFixed(2))}
}

func (h *Handler) handlePayments(ctx context.Context) Reply {
	list, err := h.payments.ListRecent(ctx, 20)
	if err != nil {
		return h.failed("payments", err)
	}
	if len(list) == 0 {
		return Reply{Text: "Счетов пока нет"}
	}
	var sb strings.Builder
	sb.WriteString("Последние счета:\n")
	for _, p := range list {
		sb.WriteString(fmt.Sprintf("ID: %s, User: %d, Amount: %s₽, Status: %s, %s\n",
			p.InvoiceID, p.UserID, p.Amount.StringFixed(2), p.Status, p.CreatedAt.Format("02.01 15:04")))
	}
	return Reply{Text: sb.String()}
}

func (h *Handler) handleBalance(ctx context.Context, args []string, set bool) Reply {
	usage := "Использование: /admin_add_balance <user_id> <сумма>"
	if set {
		usage = "Использование: /admin_set_balance <user_id> <сумма>"
	}
	if len(args) != 2 {
		return Reply{Text: usage}
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return Reply{Text: usage}
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(args[1], ",", "."))
	if err != nil {
		return Reply{Text: usage}
	}

	var balance decimal.Decimal
	err = h.ledger.Transact(ctx, userID, func(tx *ledger.Tx) error {
		if set {
			err := tx.Set(amount)
			balance = tx.Balance()
			return err
		}
		var err error
		balance, err = tx.Credit(amount)
		return err
	})
	switch {
	case errors.Is(err, ledger.ErrUnknownUser):
		return Reply{Text: "Пользователь не найден"}
	case errors.Is(err, ledger.ErrInvalidAmount):
		return Reply{Text: "Некорректная сумма: " + args[1]}
	case err != nil:
		return h.failed("balance", err)
	}
	return Reply{Text: fmt.Sprintf("Баланс пользователя %d: %s₽", userID, balance.StringFixed(2))}
}

// handleOrder меняет статус заказа. Отмена заказа, оплаченного с баланса, возвращает деньги
// в той же транзакции, что и смена статуса.
func (h *Handler) handleOrder(ctx context.Context, args []string) Reply {
	usage := "Использование: /admin_order <order_id> <completed|cancelled>"
	if len(args) != 2 {
		return Reply{Text: usage}
	}
	status := db.OrderStatus(args[1])
	if status != db.OrderCompleted && status != db.OrderCancelled {
		return Reply{Text: usage}
	}
	order, err := h.orders.Get(ctx, args[0])
	if errors.Is(err, db.ErrNotFound) {
		return Reply{Text: "Заказ не найден"}
	}
	if err != nil {
		return h.failed("order", err)
	}

	refunded := false
	err = h.ledger.Transact(ctx, order.UserID, func(tx *ledger.Tx) error {
		if err := h.orders.WithTx(tx.DB()).UpdateStatus(ctx, order.ID, status); err != nil {
			return err
		}
		if status == db.OrderCancelled && order.PaymentMethod == db.PayFromBalance {
			if _, err := tx.Credit(order.Amount); err != nil {
				return err
			}
			refunded = true
		}
		return nil
	})
	if errors.Is(err, db.ErrInvalidTransition) {
		return Reply{Text: "Статус заказа уже окончательный: " + err.Error()}
	}
	if err != nil {
		return h.failed("order", err)
	}
	text := fmt.Sprintf("Заказ %s: %s", order.ID, status)
	if refunded {
		text += fmt.Sprintf("\nВозвращено на баланс: %s₽", order.Amount.StringFixed(2))
	}
	return Reply{Text: text}
}

func (h *Handler) handleAddAdmin(ctx context.Context, adminID int64, args []string) Reply {
	if len(args) != 1 {
		return Reply{Text: "Использование: /admin_add_admin <user_id>"}
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return Reply{Text: "Использование: /admin_add_admin <user_id>"}
	}
	if err := h.admins.Add(ctx, id, adminID); err != nil {
		return h.failed("add admin", err)
	}
	return Reply{Text: fmt.Sprintf("Пользователь %d теперь администратор", id)}
}

func (h *Handler) handleBackup(ctx context.Context) Reply {
	filename, err := h.backups.Create(ctx, "backup")
	if err != nil {
		return Reply{Text: "Ошибка резервного копирования: " + err.Error()}
	}
	return Reply{Text: "Резервная копия БД успешно создана", File: filename}
}

func (h *Handler) handleRestore(ctx context.Context, args []string) Reply {
	if len(args) != 1 {
		return Reply{Text: "Укажите имя файла для восстановления"}
	}
	if err := h.backups.Restore(ctx, args[0]); err != nil {
		return Reply{Text: "Ошибка восстановления: " + err.Error()}
	}
	return Reply{Text: "Восстановление успешно завершено из файла: " + args[0]}
}

func (h *Handler) failed(what string, err error) Reply {
	h.log.Error("admin command failed", zap.String("command", what), zap.Error(err))
	return Reply{Text: "Ошибка: " + err.Error()}
}
