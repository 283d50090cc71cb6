package link

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen 链路连续 I/O 失败，冷却期内直接拒绝下发
var ErrCircuitOpen = errors.New("link: circuit open")

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常
	BreakerOpen                         // 熔断，拒绝下发
	BreakerHalfOpen                     // 冷却结束，放行一次试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker 只统计链路 I/O 失败；应答超时、确认码失败不计入
// 链路同一时刻只有一次收发，半开状态只放行一次试探
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probing   bool
	tripCount int64

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewBreaker threshold <= 0 时不启用熔断
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// OnStateChange 状态变化回调，在持锁外同步调用
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) { b.onStateChange = fn }

// Allow 是否可以下发
func (b *Breaker) Allow() error {
	if b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	var from, to BreakerState
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, to)
		}
	}()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		from, to, changed = b.state, BreakerHalfOpen, true
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record 记录一次收发结果；ioFailed 表示发生了链路 I/O 错误
func (b *Breaker) Record(ioFailed bool) {
	if b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	from := b.state
	b.probing = false
	if ioFailed {
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
			if from != BreakerOpen {
				b.tripCount++
			}
		}
	} else {
		b.failures = 0
		b.state = BreakerClosed
	}
	to := b.state
	b.mu.Unlock()
	if from != to {
		b.notify(from, to)
	}
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats 熔断统计
type BreakerStats struct {
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	TripCount int64  `json:"trip_count"`
}

func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{State: b.state.String(), Failures: b.failures, TripCount: b.tripCount}
}

func (b *Breaker) notify(from, to BreakerState) {
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
