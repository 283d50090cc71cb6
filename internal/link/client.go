package link

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/zw-fingerprint/internal/logging"
	"github.com/taoyao-code/zw-fingerprint/internal/metrics"
	"github.com/taoyao-code/zw-fingerprint/internal/protocol/zw"
)

var (
	ErrClosed    = errors.New("link closed")
	ErrTimeout   = errors.New("link: response timeout")
	ErrThrottled = errors.New("link: throttled")
)

// Options 链路参数
type Options struct {
	ReadTimeout  time.Duration // 等待单帧应答的超时
	WriteTimeout time.Duration
	RatePerSec   float64
	Burst        int
	MaxFrameLen  int
	StageTimeout time.Duration // 多阶段命令收到首帧后等待下一阶段的超时
	// 连续 BreakerThreshold 次 I/O 失败后熔断 BreakerCooldown；0 表示不熔断
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Logger           *zap.Logger
	Metrics          *metrics.AppMetrics
}

// Reply 一帧应答；Err 非空表示该帧未通过校验
type Reply struct {
	Raw      []byte
	Response *zw.Response
	Err      error
}

// Exchange 一次命令收发的结果
type Exchange struct {
	ID      uuid.UUID
	Request *zw.Encoded
	Replies []Reply
	Elapsed time.Duration
}

// Final 最后一帧合法应答
func (e *Exchange) Final() *zw.Response {
	for i := len(e.Replies) - 1; i >= 0; i-- {
		if e.Replies[i].Err == nil {
			return e.Replies[i].Response
		}
	}
	return nil
}

// Client 串口链路客户端
// 同一时刻只有一次收发在进行；不做自动重试，失败由调用方决定是否重发
type Client struct {
	mu      sync.Mutex
	conn    Transport
	codec   *zw.Codec
	pacer   *Pacer
	breaker *Breaker
	dec     *zw.StreamDecoder
	opts    Options
	log     *zap.Logger

	stateMu sync.Mutex
	closed  bool
	lastErr error // 最近一次 I/O 错误，健康检查使用
}

// NewClient 基于已打开的链路创建客户端
func NewClient(conn Transport, codec *zw.Codec, opts Options) *Client {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = time.Second
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 15 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		conn:    conn,
		codec:   codec,
		pacer:   NewPacer(opts.RatePerSec, opts.Burst),
		breaker: NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		dec:     zw.NewStreamDecoder(opts.MaxFrameLen),
		opts:    opts,
		log:     log.Named("link"),
	}
	c.breaker.OnStateChange(func(from, to BreakerState) {
		c.log.Warn("link breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		if opts.Metrics != nil {
			opts.Metrics.LinkBreakerState.Set(float64(to))
		}
	})
	return c
}

// Codec 返回链路使用的编解码器
func (c *Client) Codec() *zw.Codec { return c.codec }

// PacerStats 节流统计
func (c *Client) PacerStats() PacerStats { return c.pacer.Stats() }

// BreakerStats 熔断统计
func (c *Client) BreakerStats() BreakerStats { return c.breaker.Stats() }

// Exchange 下发一帧命令并收集应答
// AutoEnroll / AutoIdentify 会连续上报过程状态，收到终态（存储完成、比对结果或失败确认码）才结束；
// 其余命令以第一帧应答为准。应答帧未通过校验时立即返回该校验错误。
func (c *Client) Exchange(ctx context.Context, req *zw.Encoded) (*Exchange, error) {
	if req == nil {
		return nil, errors.New("link: nil request")
	}
	op := zw.OpcodeName(req.Opcode)
	if c.isClosed() {
		c.observe(op, "error")
		return nil, ErrClosed
	}
	if err := c.pacer.Wait(ctx); err != nil {
		c.observe(op, "throttled")
		return nil, fmt.Errorf("%w: %v", ErrThrottled, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.breaker.Allow(); err != nil {
		c.observe(op, "rejected")
		return nil, err
	}

	ex := &Exchange{ID: uuid.New(), Request: req}
	log := c.log.With(zap.String("exchange_id", ex.ID.String()), zap.String("op", op))
	start := time.Now()

	err := c.roundTrip(ctx, ex, log)
	ex.Elapsed = time.Since(start)
	var ioErr *ioError
	c.breaker.Record(errors.As(err, &ioErr))
	if err != nil {
		c.observe(op, "error")
		log.Warn("exchange failed", zap.Error(err), zap.Int("replies", len(ex.Replies)), zap.Duration("elapsed", ex.Elapsed))
		return ex, err
	}
	c.observe(op, "ok")
	if c.opts.Metrics != nil {
		c.opts.Metrics.LinkRoundTrip.Observe(ex.Elapsed.Seconds())
	}
	log.Debug("exchange done", zap.Int("replies", len(ex.Replies)), zap.Duration("elapsed", ex.Elapsed))
	return ex, nil
}

func (c *Client) roundTrip(ctx context.Context, ex *Exchange, log *zap.Logger) error {
	c.dec.Reset()

	if err := setDeadline(c.conn.SetWriteDeadline, deadline(ctx, c.opts.WriteTimeout)); err != nil {
		return c.ioFailed(err)
	}
	n, err := c.conn.Write(ex.Request.Raw)
	if err != nil {
		return c.ioFailed(fmt.Errorf("write: %w", err))
	}
	c.addSent(n)
	log.Debug("frame sent", logging.Frame("raw", ex.Request.Raw))

	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := setDeadline(c.conn.SetReadDeadline, c.readDeadline(ctx, ex)); err != nil {
			return c.ioFailed(err)
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.addRecv(n)
			for _, frame := range c.dec.Feed(buf[:n]) {
				resp, perr := c.codec.ParseResponse(frame, len(frame))
				ex.Replies = append(ex.Replies, Reply{Raw: frame, Response: resp, Err: perr})
				if perr != nil {
					log.Warn("invalid response frame", logging.Frame("raw", frame), zap.Error(perr))
					return perr
				}
				log.Debug("frame received", logging.Frame("raw", frame), zap.Stringer("confirm", resp.Confirm))
				if terminal(ex.Request.Opcode, resp) {
					c.clearErr()
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return ErrTimeout
			}
			return c.ioFailed(fmt.Errorf("read: %w", err))
		}
	}
}

// readDeadline 首帧按 ReadTimeout 等待；自动注册/识别进入阶段上报后，
// 模块要等手指按压，改为等到请求截止时间（没有则 StageTimeout）
func (c *Client) readDeadline(ctx context.Context, ex *Exchange) time.Time {
	if len(ex.Replies) == 0 || !multiStage(ex.Request.Opcode) {
		return deadline(ctx, c.opts.ReadTimeout)
	}
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(c.opts.StageTimeout)
}

func multiStage(op byte) bool {
	return op == zw.OpAutoEnroll || op == zw.OpAutoIdentify
}

// terminal 判断该应答是否为本次命令的最后一帧
func terminal(op byte, r *zw.Response) bool {
	if !r.Confirm.OK() {
		return true
	}
	switch op {
	case zw.OpAutoEnroll:
		st, err := zw.EnrollStatusOf(r)
		return err != nil || st.Done()
	case zw.OpAutoIdentify:
		out, err := zw.IdentifyOutcomeOf(r)
		return err != nil || out.Matched()
	default:
		return true
	}
}

// Ping 链路已关闭或最近一次收发发生 I/O 错误时返回错误
func (c *Client) Ping(context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.lastErr
}

// Close 关闭链路
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	c.stateMu.Unlock()
	return c.conn.Close()
}

func (c *Client) isClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.closed
}

// ioError 链路读写失败（区别于应答超时与帧校验失败）
type ioError struct{ err error }

func (e *ioError) Error() string { return e.err.Error() }
func (e *ioError) Unwrap() error { return e.err }

func (c *Client) ioFailed(err error) error {
	c.stateMu.Lock()
	c.lastErr = err
	c.stateMu.Unlock()
	return &ioError{err: err}
}

func (c *Client) clearErr() {
	c.stateMu.Lock()
	c.lastErr = nil
	c.stateMu.Unlock()
}

func (c *Client) observe(op, result string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.LinkExchanges.WithLabelValues(op, result).Inc()
	}
}

func (c *Client) addSent(n int) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.LinkBytesSent.Add(float64(n))
	}
}

func (c *Client) addRecv(n int) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.LinkBytesRecv.Add(float64(n))
	}
}

// deadline 取 ctx 截止时间与 now+d 中较早者
func deadline(ctx context.Context, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if dl, ok := ctx.Deadline(); ok && dl.Before(t) {
		return dl
	}
	return t
}

// setDeadline 不支持超时的设备文件按无超时处理
func setDeadline(set func(time.Time) error, t time.Time) error {
	if err := set(t); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return err
	}
	return nil
}
