package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/ledger"
)

const reconcileBatch = 500

// Итог одного прохода сверки
type CycleResult struct {
	Checked int
	Settled int
	Expired int
	Failed  int
}

// Reconciler сверяет неоплаченные счета со шлюзом и зачисляет оплаченные ровно один раз
type Reconciler struct {
	payments *db.Payments
	gateway  Gateway
	ledger   *ledger.Ledger
	notifier UserNotifier
	log      *zap.Logger
	timeout  time.Duration
	batch    int
	now      func() time.Time
}

func NewReconciler(payments *db.Payments, gateway Gateway, l *ledger.Ledger, notifier UserNotifier,
	timeout time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{
		payments: payments,
		gateway:  gateway,
		ledger:   l,
		notifier: notifier,
		log:      log,
		timeout:  timeout,
		batch:    reconcileBatch,
		now:      time.Now,
	}
}

// RunCycle проверяет все счета в статусе created, страницами по batch штук. Ошибка по одному
// счёту не мешает остальным: такой счёт остаётся created и будет проверен в следующем цикле.
func (r *Reconciler) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	after := ""
	for {
		page, err := r.payments.ListCreated(ctx, after, r.batch)
		if err != nil {
			return res, fmt.Errorf("list pending payments: %w", err)
		}
		for _, p := range page {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			r.reconcile(ctx, p, &res)
		}
		if len(page) < r.batch {
			break
		}
		after = page[len(page)-1].InvoiceID
	}
	if res.Checked > 0 {
		r.log.Info("reconciliation cycle",
			zap.Int("checked", res.Checked), zap.Int("settled", res.Settled),
			zap.Int("expired", res.Expired), zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p db.Payment, res *CycleResult) {
	res.Checked++
	status, err := r.remoteStatus(ctx, p.InvoiceID)
	if err != nil {
		res.Failed++
		r.log.Warn("payment check failed", zap.String("invoice_id", p.InvoiceID), zap.Error(err))
		return
	}
	switch status {
	case db.PaymentPaid:
		settled, err := r.settle(ctx, p, true)
		if err != nil {
			res.Failed++
			r.log.Error("payment settlement failed", zap.String("invoice_id", p.InvoiceID), zap.Error(err))
			return
		}
		if settled {
			res.Settled++
		}
	case db.PaymentExpired:
		ok, err := r.payments.MarkExpired(ctx, p.InvoiceID)
		if err != nil {
			res.Failed++
			r.log.Error("mark expired failed", zap.String("invoice_id", p.InvoiceID), zap.Error(err))
			return
		}
		if ok {
			res.Expired++
		}
	}
}

// Settle зачисляет счёт, о котором шлюз сообщил сам (webhook). Повторный вызов ничего не делает.
func (r *Reconciler) Settle(ctx context.Context, invoiceID string) (bool, error) {
	p, err := r.payments.Get(ctx, invoiceID)
	if err != nil {
		return false, err
	}
	if p.Status != db.PaymentCreated {
		return false, nil
	}
	return r.settle(ctx, p, true)
}

// Ручная проверка счёта пользователем. Чужой счёт неотличим от несуществующего.
func (r *Reconciler) CheckPayment(ctx context.Context, userID int64, invoiceID string) (db.Payment, error) {
	p, err := r.payments.Get(ctx, invoiceID)
	if err != nil {
		return db.Payment{}, err
	}
	if p.UserID != userID {
		return db.Payment{}, fmt.Errorf("invoice %s: %w", invoiceID, db.ErrNotFound)
	}
	if p.Status != db.PaymentCreated {
		return p, nil
	}
	status, err := r.remoteStatus(ctx, invoiceID)
	if err != nil {
		return p, err
	}
	switch status {
	case db.PaymentPaid:
		if _, err := r.settle(ctx, p, false); err != nil {
			return p, err
		}
	case db.PaymentExpired:
		if _, err := r.payments.MarkExpired(ctx, invoiceID); err != nil {
			return p, err
		}
	default:
		return p, nil
	}
	return r.payments.Get(ctx, invoiceID)
}

func (r *Reconciler) remoteStatus(ctx context.Context, invoiceID string) (db.PaymentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	status, err := r.gateway.CheckStatus(ctx, invoiceID)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return status, err
}

// settle отмечает счёт оплаченным и зачисляет сумму в одной транзакции.
// Зачисляет только тот вызов, который перевёл счёт из created в paid.
func (r *Reconciler) settle(ctx context.Context, p db.Payment, notify bool) (bool, error) {
	var settled bool
	err := r.ledger.Transact(ctx, p.UserID, func(tx *ledger.Tx) error {
		ok, err := r.payments.WithTx(tx.DB()).MarkPaid(ctx, p.InvoiceID, r.now())
		if err != nil || !ok {
			return err
		}
		if _, err := tx.Credit(p.Amount); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !settled {
		return false, nil
	}
	r.log.Info("payment settled",
		zap.String("invoice_id", p.InvoiceID), zap.Int64("user_id", p.UserID),
		zap.String("amount", p.Amount.StringFixed(2)))
	if notify && r.notifier != nil {
		text := fmt.Sprintf("✅ Оплата получена! Ваш баланс пополнен на %s ₽", p.Amount.StringFixed(2))
		if err := r.notifier.NotifyUser(ctx, p.UserID, text); err != nil {
			r.log.Warn("settlement notice not delivered", zap.Int64("user_id", p.UserID), zap.Error(err))
		}
	}
	return true, nil
}
