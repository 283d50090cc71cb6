package health

import (
	"context"
	"fmt"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"   // 健康
	StatusDegraded  Status = "degraded"  // 降级（部分功能受损但仍可服务）
	StatusUnhealthy Status = "unhealthy" // 不健康（无法服务）
)

// CheckResult 健康检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 健康检查器接口
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Pinger 可探活的依赖（Redis 槽位缓存、PG 连接池、串口链路）
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 把普通函数适配为 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingChecker 以 Ping 结果判断健康状态
// Optional 为 true 时 Ping 失败只记为降级：槽位缓存与帧日志缺失不影响构帧/校验
type PingChecker struct {
	name     string
	target   Pinger
	optional bool
	details  func() map[string]interface{}
}

// NewPingChecker 创建检查器
func NewPingChecker(name string, target Pinger, optional bool) *PingChecker {
	return &PingChecker{name: name, target: target, optional: optional}
}

// WithDetails 附加统计信息（连接池状态等）
func (c *PingChecker) WithDetails(fn func() map[string]interface{}) *PingChecker {
	c.details = fn
	return c
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	res := CheckResult{Status: StatusHealthy, Message: "ok"}
	if err := c.target.Ping(ctx); err != nil {
		res.Status = StatusUnhealthy
		if c.optional {
			res.Status = StatusDegraded
		}
		res.Message = fmt.Sprintf("ping failed: %v", err)
	}
	if c.details != nil {
		res.Details = c.details()
	}
	res.Latency = time.Since(start)
	return res
}
