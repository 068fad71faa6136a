package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stream-boost-bot/internal/db"
)

const (
	backupTimeout   = 2 * time.Minute
	backupRetention = 31 * 24 * time.Hour
)

var ErrRestoreUnsupported = errors.New("restore is supported only for postgres")

// Резервные копии БД: pg_dump для Postgres, VACUUM INTO для SQLite
type Backups struct {
	db  *gorm.DB
	dsn string
	dir string
	log *zap.Logger
	now func() time.Time
}

func NewBackups(gdb *gorm.DB, dsn, dir string, log *zap.Logger) *Backups {
	return &Backups{db: gdb, dsn: dsn, dir: dir, log: log, now: time.Now}
}

// Create делает копию в каталоге бэкапов и возвращает путь к файлу
func (b *Backups) Create(ctx context.Context, prefix string) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()

	name := prefix + "_" + b.now().Format("20060102_150405")
	if db.IsPostgres(b.db) {
		filename := filepath.Join(b.dir, name+".dump")
		out, err := exec.CommandContext(ctx, "pg_dump", b.dsn, "-Fc", "-f", filename).CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("pg_dump: %w: %s", err, strings.TrimSpace(string(out)))
		}
		return filename, nil
	}
	filename := filepath.Join(b.dir, name+".db")
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO ?", filename).Error; err != nil {
		return "", fmt.Errorf("vacuum into: %w", err)
	}
	return filename, nil
}

// Restore восстанавливает БД из дампа в каталоге бэкапов
func (b *Backups) Restore(ctx context.Context, name string) error {
	if !db.IsPostgres(b.db) {
		return ErrRestoreUnsupported
	}
	filename := filepath.Join(b.dir, filepath.Base(name))
	ctx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pg_restore", "--clean", "-d", b.dsn, filename).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pg_restore: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CleanOldBackups удаляет копии старше maxAge
func CleanOldBackups(dir string, maxAge time.Duration, now time.Time) (int, error) {
	var files []string
	for _, pattern := range []string{"*backup_*.dump", "*backup_*.db"} {
		matched, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, err
		}
		files = append(files, matched...)
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(f); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Ночная задача: копия и чистка старых копий
func (b *Backups) AutoBackup(ctx context.Context) error {
	filename, err := b.Create(ctx, "autobackup")
	if err != nil {
		b.log.Error("auto backup failed", zap.Error(err))
		return err
	}
	removed, err := CleanOldBackups(b.dir, backupRetention, b.now())
	if err != nil {
		b.log.Warn("old backups not cleaned", zap.Error(err))
	}
	b.log.Info("auto backup created", zap.String("file", filename), zap.Int("removed", removed))
	return nil
}
