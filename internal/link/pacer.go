package link

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Pacer 下行命令节流（令牌桶）
// 模块串口处理能力有限，连续下发过快会丢帧
type Pacer struct {
	limiter       *rate.Limiter
	ratePerSec    float64
	burst         int
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewPacer ratePerSec<=0 表示不限速
func NewPacer(ratePerSec float64, burst int) *Pacer {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Pacer{
		limiter:    rate.NewLimiter(limit, burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait 阻塞直到允许下发，ctx 取消或截止时间不足时返回错误
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		p.rejectedCount.Add(1)
		return err
	}
	p.allowedCount.Add(1)
	return nil
}

// Stats 获取统计信息
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		RatePerSecond: p.ratePerSec,
		Burst:         p.burst,
		AllowedTotal:  p.allowedCount.Load(),
		RejectedTotal: p.rejectedCount.Load(),
	}
}

// PacerStats 节流统计
type PacerStats struct {
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	AllowedTotal  int64   `json:"allowed_total"`
	RejectedTotal int64   `json:"rejected_total"`
}
