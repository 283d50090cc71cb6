package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/zw-fingerprint/internal/config"
	"github.com/taoyao-code/zw-fingerprint/internal/slotcache"
	pgstorage "github.com/taoyao-code/zw-fingerprint/internal/storage/pg"
	redisstorage "github.com/taoyao-code/zw-fingerprint/internal/storage/redis"
)

// NewSlotStore 选择槽位快照存储：Redis 优先，其次 PostgreSQL，否则进程内存
func NewSlotStore(cfg cfgpkg.RedisConfig, redisClient *redisstorage.Client, dbpool *pgxpool.Pool, log *zap.Logger) slotcache.Store {
	switch {
	case redisClient != nil:
		log.Info("slot snapshots stored in redis", zap.Duration("ttl", cfg.SlotTTL))
		return slotcache.NewRedisStore(redisClient, cfg.SlotTTL)
	case dbpool != nil:
		log.Info("slot snapshots stored in postgres")
		return &pgstorage.SlotSnapshots{Pool: dbpool}
	default:
		log.Info("slot snapshots stored in memory")
		return slotcache.NewMemoryStore()
	}
}
