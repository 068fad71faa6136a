// Package ledger — единственная точка изменения баланса пользователей.
//
// Все операции над балансом одного пользователя проходят через Transact:
// внутрипроцессная блокировка по user id плюс транзакция БД с блокировкой строки
// пользователя (в Postgres). Операции разных пользователей друг друга не ждут.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stream-boost-bot/internal/db"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownUser       = errors.New("unknown user")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// InsufficientFundsError несёт текущий баланс и требуемую сумму, errors.Is(err, ErrInsufficientFunds) == true.
type InsufficientFundsError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, required %s", e.Balance.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Shortfall — сколько не хватает до требуемой суммы
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Balance)
}

var retryDelays = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond}

type Ledger struct {
	db    *gorm.DB
	locks *userLocks
}

func New(gdb *gorm.DB) *Ledger {
	return &Ledger{db: gdb, locks: newUserLocks()}
}

// Tx — операции над балансом одного пользователя внутри открытой транзакции.
// Всё, что должно закоммититься вместе с изменением баланса, пишется через DB().
type Tx struct {
	tx      *gorm.DB
	user    db.User
	balance decimal.Decimal
}

func (t *Tx) DB() *gorm.DB { return t.tx }

func (t *Tx) User() db.User { return t.user }

func (t *Tx) Balance() decimal.Decimal { return t.balance }

// Debit списывает amount; при нехватке средств возвращает *InsufficientFundsError и баланс не меняет.
func (t *Tx) Debit(amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount(amount); err != nil {
		return t.balance, err
	}
	if amount.GreaterThan(t.balance) {
		return t.balance, &InsufficientFundsError{Balance: t.balance, Required: amount}
	}
	t.balance = t.balance.Sub(amount)
	return t.balance, nil
}

func (t *Tx) Credit(amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount(amount); err != nil {
		return t.balance, err
	}
	t.balance = t.balance.Add(amount)
	return t.balance, nil
}

// Set выставляет баланс напрямую (ручная корректировка администратором)
func (t *Tx) Set(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	t.balance = amount
	return nil
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// Transact выполняет fn атомарно относительно всех других операций над балансом userID.
// Если fn вернула ошибку, откатываются и баланс, и всё записанное через Tx.DB().
func (l *Ledger) Transact(ctx context.Context, userID int64, fn func(tx *Tx) error) error {
	unlock, err := l.locks.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	return withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			var user db.User
			if err := db.ForUpdate(gtx).First(&user, userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %d", ErrUnknownUser, userID)
				}
				return fmt.Errorf("load balance: %w", err)
			}
			t := &Tx{tx: gtx, user: user, balance: user.Balance}
			if err := fn(t); err != nil {
				return err
			}
			if t.balance.Equal(user.Balance) {
				return nil
			}
			if t.balance.IsNegative() {
				return fmt.Errorf("%w: negative balance %s", ErrInvalidAmount, t.balance)
			}
			err := gtx.Model(&db.User{}).Where("id = ?", userID).Update("balance", t.balance).Error
			if err != nil {
				return fmt.Errorf("save balance: %w", err)
			}
			return nil
		})
	})
}

// Debit списывает amount и возвращает новый баланс
func (l *Ledger) Debit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.Transact(ctx, userID, func(tx *Tx) error {
		var err error
		balance, err = tx.Debit(amount)
		return err
	})
	return balance, err
}

// Credit зачисляет amount и возвращает новый баланс
func (l *Ledger) Credit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.Transact(ctx, userID, func(tx *Tx) error {
		var err error
		balance, err = tx.Credit(amount)
		return err
	})
	return balance, err
}

func (l *Ledger) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var user db.User
	if err := l.db.WithContext(ctx).Select("balance").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
		}
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// withRetry повторяет транзакцию при serialization failure и deadlock в Postgres
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; ; i++ {
		err = fn()
		if err == nil || !retryable(err) || i >= len(retryDelays) {
			return err
		}
		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}
