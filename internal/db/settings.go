package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ключи системных настроек
const (
	SettingUSDTRate     = "usdt_rate"
	SettingLastRestart  = "last_restart"
	SettingLastActivity = "last_activity"
)

const settingTimeLayout = "2006-01-02 15:04:05"

// Небольшое key-value хранилище процесса
type Settings struct {
	db *gorm.DB
}

func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var row Setting
	err := s.db.WithContext(ctx).Where(&Setting{Key: key}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return row.Value, true, nil
}

func (s *Settings) Set(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Setting{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// SetTime сохраняет отметку времени в формате, который читает человек в админке
func (s *Settings) SetTime(ctx context.Context, key string, t time.Time) error {
	return s.Set(ctx, key, t.Format(settingTimeLayout))
}
