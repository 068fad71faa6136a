package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stream-boost-bot/internal/db"
)

// KeepAlive периодически проверяет соединение с БД и отмечает время активности процесса
type KeepAlive struct {
	db       *gorm.DB
	settings *db.Settings
	log      *zap.Logger
	now      func() time.Time
}

func NewKeepAlive(gdb *gorm.DB, settings *db.Settings, log *zap.Logger) *KeepAlive {
	return &KeepAlive{db: gdb, settings: settings, log: log, now: time.Now}
}

func (k *KeepAlive) Run(ctx context.Context) error {
	if err := db.Ping(ctx, k.db); err != nil {
		k.log.Error("database ping failed", zap.Error(err))
		return err
	}
	if err := k.settings.SetTime(ctx, db.SettingLastActivity, k.now()); err != nil {
		k.log.Warn("last activity not stored", zap.Error(err))
		return err
	}
	return nil
}

// MarkRestart сохраняет время запуска процесса
func (k *KeepAlive) MarkRestart(ctx context.Context) error {
	return k.settings.SetTime(ctx, db.SettingLastRestart, k.now())
}
