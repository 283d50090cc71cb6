package app

import (
	"context"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/taoyao-code/zw-fingerprint/db"
	cfgpkg "github.com/taoyao-code/zw-fingerprint/internal/config"
	"github.com/taoyao-code/zw-fingerprint/internal/migrate"
	pgstorage "github.com/taoyao-code/zw-fingerprint/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并执行迁移
// 未启用数据库时返回 nil 连接池
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	if !cfg.Enabled {
		log.Info("database is disabled, frame journal off")
		return nil, nil
	}
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	n, err := migrationRunner(cfg.MigrationsDir, log).Up(ctx, dbpool)
	if err != nil {
		log.Error("db migrate error", zap.Error(err))
		return dbpool, err
	}
	log.Info("db migrations applied", zap.Int("applied", n))
	return dbpool, nil
}

// migrationRunner dir 为空时使用内嵌迁移
func migrationRunner(dir string, log *zap.Logger) migrate.Runner {
	var fsys fs.FS = db.Migrations
	sub := "migrations"
	if dir != "" {
		fsys, sub = os.DirFS(dir), "."
	}
	return migrate.Runner{FS: fsys, Dir: sub, Log: log}
}
