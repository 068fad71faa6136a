package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Admins struct {
	db *gorm.DB
}

func NewAdmins(db *gorm.DB) *Admins {
	return &Admins{db: db}
}

// Seed добавляет администраторов из конфигурации, существующие записи не трогает
func (r *Admins) Seed(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := r.Add(ctx, id, 0); err != nil {
			return err
		}
	}
	return nil
}

func (r *Admins) Add(ctx context.Context, id, addedBy int64) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Admin{UserID: id, AddedBy: addedBy, AddedAt: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("add admin %d: %w", id, err)
	}
	return nil
}

func (r *Admins) IsAdmin(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Admin{}).Where("user_id = ?", id).Count(&count).Error
	return count > 0, err
}

// Список всех администраторов для рассылки алертов
func (r *Admins) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Admin{}).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}
