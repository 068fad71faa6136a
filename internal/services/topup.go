package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stream-boost-bot/internal/db"
)

// Верхняя граница одного пополнения в рублях, с большим запасом ниже numeric(14,2)
const MaxTopUpRub = 1_000_000

// ErrInvalidTopUp: сумма не положительна, больше MaxTopUpRub или точнее копейки
var ErrInvalidTopUp = errors.New("invalid top-up amount")

// ValidTopUp проверяет сумму до обращения к шлюзу: сохранить и зачислить можно только её
func ValidTopUp(amountRub decimal.Decimal) error {
	if !amountRub.IsPositive() || !amountRub.Equal(amountRub.Round(2)) ||
		amountRub.GreaterThan(decimal.NewFromInt(MaxTopUpRub)) {
		return fmt.Errorf("%w: %s", ErrInvalidTopUp, amountRub.String())
	}
	return nil
}

// Сумма пополнения в рублях и её эквивалент в USDT по текущему курсу
type Quote struct {
	AmountRub  decimal.Decimal
	AmountUSDT decimal.Decimal
	Rate       decimal.Decimal
}

// RateSource отдаёт курс USDT/RUB для выставления счёта
type RateSource interface {
	Quote(ctx context.Context) decimal.Decimal
}

type TopUps struct {
	gateway  Gateway
	rates    RateSource
	payments *db.Payments
	log      *zap.Logger
}

func NewTopUps(gateway Gateway, rates RateSource, payments *db.Payments, log *zap.Logger) *TopUps {
	return &TopUps{gateway: gateway, rates: rates, payments: payments, log: log}
}

func (t *TopUps) Quote(ctx context.Context, amountRub decimal.Decimal) Quote {
	rate := t.rates.Quote(ctx)
	return Quote{
		AmountRub:  amountRub,
		AmountUSDT: amountRub.DivRound(rate, 2),
		Rate:       rate,
	}
}

// Create выставляет счёт в шлюзе и сохраняет его. Если шлюз ответил ошибкой, запись не создаётся.
func (t *TopUps) Create(ctx context.Context, userID int64, q Quote) (Invoice, error) {
	if err := ValidTopUp(q.AmountRub); err != nil {
		return Invoice{}, err
	}
	inv, err := t.gateway.CreateInvoice(ctx, userID, q.AmountUSDT)
	if err != nil {
		return Invoice{}, err
	}
	inv.AmountRub = q.AmountRub
	inv.AmountUSDT = q.AmountUSDT
	inv.Rate = q.Rate

	payment := &db.Payment{InvoiceID: inv.ID, UserID: userID, Amount: q.AmountRub, Currency: "RUB"}
	if err := t.payments.Create(ctx, payment); err != nil {
		// счёт в шлюзе уже есть, но без записи его никто не зачислит
		t.log.Error("invoice created but not stored",
			zap.String("invoice_id", inv.ID), zap.Int64("user_id", userID), zap.Error(err))
		return Invoice{}, fmt.Errorf("store invoice %s: %w", inv.ID, err)
	}
	t.log.Info("invoice created",
		zap.String("invoice_id", inv.ID), zap.Int64("user_id", userID),
		zap.String("amount_rub", q.AmountRub.StringFixed(2)), zap.String("amount_usdt", q.AmountUSDT.StringFixed(2)))
	return inv, nil
}
