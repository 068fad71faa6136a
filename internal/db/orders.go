package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Orders struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOrders(db *gorm.DB) *Orders {
	return &Orders{db: db, now: time.Now}
}

// WithTx возвращает репозиторий, работающий внутри транзакции tx
func (r *Orders) WithTx(tx *gorm.DB) *Orders {
	return &Orders{db: tx, now: r.now}
}

// Create сохраняет заказ с новым ID, временем создания и статусом pending.
func (r *Orders) Create(ctx context.Context, order *Order) (string, error) {
	order.ID = uuid.NewString()
	order.OrderDate = r.now()
	order.Status = OrderPending
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	return order.ID, nil
}

func (r *Orders) Get(ctx context.Context, id string) (Order, error) {
	var order Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return Order{}, notFound(err)
	}
	return order, nil
}

// UpdateStatus переводит заказ из pending в completed или cancelled.
// Из конечного статуса переход невозможен: ErrInvalidTransition.
func (r *Orders) UpdateStatus(ctx context.Context, id string, status OrderStatus) error {
	if status != OrderCompleted && status != OrderCancelled {
		return fmt.Errorf("%w: to %q", ErrInvalidTransition, status)
	}
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, OrderPending).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
}

// ListByUser возвращает последние заказы пользователя, новые первыми
func (r *Orders) ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("order_date desc").Limit(limit).Find(&orders).Error
	return orders, err
}

// Количество заказов пользователя и сумма потраченного
func (r *Orders) UserTotals(ctx context.Context, userID int64) (int64, decimal.Decimal, error) {
	var row struct {
		Count int64
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&Order{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("order totals: %w", err)
	}
	return row.Count, row.Total, nil
}

// Статистика для админки
func (r *Orders) CountByStatus(ctx context.Context) (map[OrderStatus]int64, error) {
	var rows []struct {
		Status OrderStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&Order{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make(map[OrderStatus]int64, len(rows))
	for _, row := range rows {
		res[row.Status] = row.Count
	}
	return res, nil
}
