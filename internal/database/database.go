// Package database 负责 PostgreSQL 连接与 GORM 模型。
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prepkitty/internal/config"
)

const slowQuery = 500 * time.Millisecond

// InitDatabase 连接 PostgreSQL 并在返回前确认连通。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(postgres.Open(cfg.DSN()))
	if err != nil {
		return nil, err
	}

	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql pool: %w", err)
	}
	pool.SetMaxOpenConns(max(cfg.MaxOpen, 1))
	pool.SetMaxIdleConns(max(cfg.MaxIdle, 0))
	pool.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// Open 供 postgres 与测试里的 sqlite 共用，唯一键冲突统一为 gorm.ErrDuplicatedKey。
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: logger.NewSlogLogger(slog.Default().With(slog.String("component", "gorm")), logger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	return db, nil
}
