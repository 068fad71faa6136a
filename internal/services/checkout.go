package services

import (
	"context"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/ledger"
)

// Шаг оплаты заказа с баланса
type Checkout struct {
	ledger *ledger.Ledger
	orders *db.Orders
}

func NewCheckout(l *ledger.Ledger, orders *db.Orders) *Checkout {
	return &Checkout{ledger: l, orders: orders}
}

// PlaceOrder списывает order.Amount и создаёт заказ в одной транзакции.
// При нехватке средств возвращает ошибку ledger.ErrInsufficientFunds, заказ не создаётся.
func (c *Checkout) PlaceOrder(ctx context.Context, order db.Order) (db.Order, decimal.Decimal, error) {
	var balance decimal.Decimal
	err := c.ledger.Transact(ctx, order.UserID, func(tx *ledger.Tx) error {
		var err error
		if balance, err = tx.Debit(order.Amount); err != nil {
			return err
		}
		order.PaymentMethod = db.PayFromBalance
		_, err = c.orders.WithTx(tx.DB()).Create(ctx, &order)
		return err
	})
	if err != nil {
		return db.Order{}, decimal.Zero, err
	}
	return order, balance, nil
}
