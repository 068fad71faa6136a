package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Данные профиля, которые присылает мессенджер
type UserInfo struct {
	Username  string
	FirstName string
	LastName  string
}

type Users struct {
	db  *gorm.DB
	now func() time.Time
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db, now: time.Now}
}

// Touch регистрирует пользователя при первом обращении, иначе обновляет имя и время активности.
// Баланс здесь никогда не меняется.
func (r *Users) Touch(ctx context.Context, id int64, info UserInfo) (User, bool, error) {
	now := r.now()
	var user User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{
			ID:           id,
			Username:     info.Username,
			FirstName:    info.FirstName,
			LastName:     info.LastName,
			Balance:      decimal.Zero,
			RegisteredAt: now,
			LastActivity: now,
		}
		if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
			return User{}, false, fmt.Errorf("create user: %w", err)
		}
		return user, true, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("find user: %w", err)
	}
	err = r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"username":      info.Username,
		"first_name":    info.FirstName,
		"last_name":     info.LastName,
		"last_activity": now,
	}).Error
	if err != nil {
		return User{}, false, fmt.Errorf("update user: %w", err)
	}
	user.Username, user.FirstName, user.LastName, user.LastActivity = info.Username, info.FirstName, info.LastName, now
	return user, false, nil
}

func (r *Users) Get(ctx context.Context, id int64) (User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (r *Users) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).Count(&count).Error
	return count, err
}
