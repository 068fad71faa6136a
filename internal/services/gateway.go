package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/db"
)

// Временная ошибка платёжного шлюза (таймаут, 5xx, сеть)
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Счёт, выставленный шлюзом
type Invoice struct {
	ID         string
	PayURL     string
	AmountRub  decimal.Decimal
	AmountUSDT decimal.Decimal
	Rate       decimal.Decimal
}

// Внешний платёжный шлюз. Реализации обязаны ограничивать время вызова.
type Gateway interface {
	CreateInvoice(ctx context.Context, userID int64, amountUSDT decimal.Decimal) (Invoice, error)
	CheckStatus(ctx context.Context, invoiceID string) (db.PaymentStatus, error)
}

// UserNotifier доставляет пользователю сообщение вне диалога (например, о зачислении)
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID int64, text string) error
}
