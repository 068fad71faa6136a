package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Payments struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPayments(db *gorm.DB) *Payments {
	return &Payments{db: db, now: time.Now}
}

func (r *Payments) WithTx(tx *gorm.DB) *Payments {
	return &Payments{db: tx, now: r.now}
}

// Create сохраняет новый счёт в статусе created
func (r *Payments) Create(ctx context.Context, p *Payment) error {
	p.Status = PaymentCreated
	p.CreatedAt = r.now()
	p.PaidAt = nil
	if p.Currency == "" {
		p.Currency = "RUB"
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *Payments) Get(ctx context.Context, invoiceID string) (Payment, error) {
	var p Payment
	if err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&p).Error; err != nil {
		return Payment{}, notFound(err)
	}
	return p, nil
}

// ListCreated возвращает страницу неоплаченных счетов с invoice_id больше afterID.
// Пустой afterID означает первую страницу.
func (r *Payments) ListCreated(ctx context.Context, afterID string, limit int) ([]Payment, error) {
	var list []Payment
	q := r.db.WithContext(ctx).Where("status = ?", PaymentCreated)
	if afterID != "" {
		q = q.Where("invoice_id > ?", afterID)
	}
	err := q.Order("invoice_id").Limit(limit).Find(&list).Error
	return list, err
}

// MarkPaid переводит счёт created -> paid. Возвращает false, если счёт уже не в статусе created:
// только вызов, получивший true, имеет право зачислить деньги.
func (r *Payments) MarkPaid(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, PaymentCreated).
		Updates(map[string]interface{}{"status": PaymentPaid, "paid_at": paidAt})
	if res.Error != nil {
		return false, fmt.Errorf("mark payment paid: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkExpired переводит счёт created -> expired
func (r *Payments) MarkExpired(ctx context.Context, invoiceID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, PaymentCreated).
		Update("status", PaymentExpired)
	if res.Error != nil {
		return false, fmt.Errorf("mark payment expired: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Payments) ListRecent(ctx context.Context, limit int) ([]Payment, error) {
	var list []Payment
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&list).Error
	return list, err
}

// Сумма оплаченных счетов, созданных в интервале [from, to]
func (r *Payments) SumPaid(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	err := r.db.WithContext(ctx).Model(&Payment{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("status = ? AND created_at >= ? AND created_at <= ?", PaymentPaid, from, to).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	return row.Total, nil
}
