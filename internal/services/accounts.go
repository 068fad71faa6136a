package services

import (
	"context"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/db"
)

const profileRecentOrders = 3

// Данные для экрана «Мой профиль»
type Profile struct {
	User        db.User
	OrdersCount int64
	TotalSpent  decimal.Decimal
	Recent      []db.Order
}

type Accounts struct {
	users  *db.Users
	orders *db.Orders
}

func NewAccounts(users *db.Users, orders *db.Orders) *Accounts {
	return &Accounts{users: users, orders: orders}
}

// Touch регистрирует пользователя при первом обращении и обновляет время активности
func (a *Accounts) Touch(ctx context.Context, userID int64, info db.UserInfo) (db.User, bool, error) {
	return a.users.Touch(ctx, userID, info)
}

func (a *Accounts) Profile(ctx context.Context, userID int64) (Profile, error) {
	user, err := a.users.Get(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	count, total, err := a.orders.UserTotals(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	recent, err := a.orders.ListByUser(ctx, userID, profileRecentOrders)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: user, OrdersCount: count, TotalSpent: total, Recent: recent}, nil
}
