package db

import (
	"time"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/pricing"
)

// Пользователь бота, ID совпадает с Telegram ID
type User struct {
	ID           int64 `gorm:"primaryKey;autoIncrement:false"`
	Username     string
	FirstName    string
	LastName     string
	Balance      decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	RegisteredAt time.Time       `gorm:"not null"`
	LastActivity time.Time       `gorm:"not null"`
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

type PaymentMethod string

const (
	PayFromBalance PaymentMethod = "balance"
	PayByCrypto    PaymentMethod = "crypto"
)

// Подтверждённый заказ. Amount фиксируется при подтверждении и больше не пересчитывается.
type Order struct {
	ID            string           `gorm:"primaryKey;size:36"`
	UserID        int64            `gorm:"index;not null"`
	Platform      pricing.Platform `gorm:"size:16;not null"`
	Service       pricing.Service  `gorm:"size:16;not null"`
	Channel       string           `gorm:"size:100;not null"`
	StreamDate    string           `gorm:"size:10;not null"` // 2006-01-02
	StartTime     string           `gorm:"size:5;not null"`  // 15:04
	DurationMin   int              `gorm:"not null"`
	Amount        decimal.Decimal  `gorm:"type:numeric(14,2);not null"`
	Status        OrderStatus      `gorm:"size:16;not null;index"`
	PaymentMethod PaymentMethod    `gorm:"size:16;not null"`
	OrderDate     time.Time        `gorm:"not null;index"`
}

type PaymentStatus string

const (
	PaymentCreated PaymentStatus = "created"
	PaymentPaid    PaymentStatus = "paid"
	PaymentExpired PaymentStatus = "expired"
)

// Счёт на пополнение баланса, ID выдаёт платёжный шлюз
type Payment struct {
	InvoiceID string          `gorm:"primaryKey;size:64"`
	UserID    int64           `gorm:"index;not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency  string          `gorm:"size:8;not null"`
	Status    PaymentStatus   `gorm:"size:16;not null;index"`
	CreatedAt time.Time       `gorm:"not null"`
	PaidAt    *time.Time
}

// Системные настройки процесса (курс, время рестарта и т.п.)
type Setting struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"not null"`
}

type Admin struct {
	UserID  int64 `gorm:"primaryKey;autoIncrement:false"`
	AddedBy int64
	AddedAt time.Time
}
