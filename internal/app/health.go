package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/zw-fingerprint/internal/health"
	"github.com/taoyao-code/zw-fingerprint/internal/link"
	pgstorage "github.com/taoyao-code/zw-fingerprint/internal/storage/pg"
)

// NewHealthAggregator 创建健康检查聚合器；数据库未启用时不加入检查
func NewHealthAggregator(dbpool *pgxpool.Pool) *health.Aggregator {
	agg := health.NewAggregator()
	if dbpool != nil {
		agg.AddChecker(
			health.NewPingChecker("database", dbpool, true).
				WithDetails(func() map[string]interface{} { return pgstorage.PoolStats(dbpool) }),
		)
	}
	return agg
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddLinkChecker 串口链路为必需依赖，失败即不健康
func AddLinkChecker(aggregator *health.Aggregator, client *link.Client) {
	if client == nil {
		return
	}
	aggregator.AddChecker(
		health.NewPingChecker("device_link", client, false).
			WithDetails(func() map[string]interface{} {
				st := client.PacerStats()
				return map[string]interface{}{
					"rate_per_second": st.RatePerSecond,
					"allowed_total":   st.AllowedTotal,
					"rejected_total":  st.RejectedTotal,
					"breaker":         client.BreakerStats(),
				}
			}),
	)
}
