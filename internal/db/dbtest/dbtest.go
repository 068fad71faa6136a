// Package dbtest поднимает временную SQLite-базу со схемой бота для тестов.
package dbtest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"stream-boost-bot/internal/db"
)

func New(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "bot.db"), nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}
