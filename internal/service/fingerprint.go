package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/zw-fingerprint/internal/link"
	"github.com/taoyao-code/zw-fingerprint/internal/logging"
	"github.com/taoyao-code/zw-fingerprint/internal/metrics"
	"github.com/taoyao-code/zw-fingerprint/internal/protocol/zw"
	"github.com/taoyao-code/zw-fingerprint/internal/slotcache"
	pgstorage "github.com/taoyao-code/zw-fingerprint/internal/storage/pg"
)

// ErrLinkDisabled 未配置串口链路
var ErrLinkDisabled = errors.New("device link is disabled")

// Exchanger 串口收发（*link.Client）
type Exchanger interface {
	Exchange(ctx context.Context, req *zw.Encoded) (*link.Exchange, error)
}

// Journal 帧日志（*pg.FrameJournal）
type Journal interface {
	InsertFrame(ctx context.Context, rec *pgstorage.FrameRecord) error
}

// Deps 可选依赖，nil 表示未启用
type Deps struct {
	Link    Exchanger
	Slots   slotcache.Store
	Journal Journal
	Metrics *metrics.AppMetrics
	Logger  *zap.Logger
}

// Fingerprint 指纹模块业务：构帧、校验、索引表解析与下发
type Fingerprint struct {
	codec   *zw.Codec
	link    Exchanger
	slots   slotcache.Store
	journal Journal
	metrics *metrics.AppMetrics
	log     *zap.Logger
}

// NewFingerprint 创建服务；未提供槽位存储时使用内存存储
func NewFingerprint(codec *zw.Codec, deps Deps) *Fingerprint {
	if deps.Slots == nil {
		deps.Slots = slotcache.NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Fingerprint{
		codec:   codec,
		link:    deps.Link,
		slots:   deps.Slots,
		journal: deps.Journal,
		metrics: deps.Metrics,
		log:     deps.Logger,
	}
}

// Codec 返回编解码器
func (s *Fingerprint) Codec() *zw.Codec { return s.codec }

// LinkEnabled 是否可下发到设备
func (s *Fingerprint) LinkEnabled() bool { return s.link != nil }

// Build 构帧并记录指标；颜色截断以 warn 日志记录
func (s *Fingerprint) Build(cmd zw.Command) (*zw.Encoded, error) {
	enc, err := s.codec.Build(cmd)
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, zw.ErrParameterOutOfRange):
			result = "param_error"
		case errors.Is(err, zw.ErrUnsupportedCommand):
			result = "unsupported"
		}
		s.countBuild(cmd, result)
		return nil, err
	}
	s.countBuild(cmd, "ok")
	for _, w := range enc.Warnings {
		s.log.Warn("frame parameter adjusted",
			zap.String("op", zw.OpcodeName(enc.Opcode)),
			zap.String("kind", string(w.Kind)),
			zap.String("field", w.Field),
			zap.Uint8("from", w.From),
			zap.Uint8("to", w.To),
		)
		if s.metrics != nil {
			s.metrics.FrameWarnings.WithLabelValues(string(w.Kind)).Inc()
		}
	}
	s.log.Debug("frame built", zap.String("op", zw.OpcodeName(enc.Opcode)), logging.Frame("raw", enc.Raw))
	return enc, nil
}

// Validate 校验应答帧
func (s *Fingerprint) Validate(raw []byte) (*zw.Frame, error) {
	f, err := s.codec.Decode(raw, len(raw))
	s.countValidation(err)
	return f, err
}

// ParseIndexTable 解析读索引表应答并更新槽位快照
func (s *Fingerprint) ParseIndexTable(ctx context.Context, raw []byte) ([]int, error) {
	ids, err := s.codec.ParseIndexTable(raw, len(raw))
	s.countValidation(err)
	if err != nil {
		return nil, err
	}
	s.storeSlots(ctx, ids)
	return ids, nil
}

// Slots 最近一次的槽位快照
func (s *Fingerprint) Slots(ctx context.Context) (*slotcache.Snapshot, error) {
	return s.slots.Get(ctx, s.codec.Address().String())
}

// SendResult 下发结果
type SendResult struct {
	Exchange *link.Exchange
	Warnings []zw.Warning
	Slots    []int // 读索引表（第0页）成功时的槽位
}

// Send 构帧、下发并等待应答；收发的每一帧写入帧日志
func (s *Fingerprint) Send(ctx context.Context, cmd zw.Command) (*SendResult, error) {
	if s.link == nil {
		return nil, ErrLinkDisabled
	}
	enc, err := s.Build(cmd)
	if err != nil {
		return nil, err
	}
	ex, err := s.link.Exchange(ctx, enc)
	if ex != nil {
		s.journalExchange(context.WithoutCancel(ctx), ex)
	}
	res := &SendResult{Exchange: ex, Warnings: enc.Warnings}
	if err != nil {
		return res, err
	}

	if page0(cmd) {
		if final := ex.Replies[len(ex.Replies)-1]; final.Response != nil && final.Response.Confirm.OK() {
			ids, perr := s.ParseIndexTable(ctx, final.Raw)
			if perr != nil {
				return res, perr
			}
			res.Slots = ids
		}
	}
	return res, nil
}

func page0(cmd zw.Command) bool {
	switch c := cmd.(type) {
	case zw.ReadIndexTable:
		return c.Page == 0
	case *zw.ReadIndexTable:
		return c.Page == 0
	}
	return false
}

func (s *Fingerprint) storeSlots(ctx context.Context, ids []int) {
	v := s.codec.Variant()
	snap := slotcache.Snapshot{
		Address:   s.codec.Address().String(),
		Variant:   v.Name,
		Capacity:  v.Capacity,
		Slots:     ids,
		UpdatedAt: time.Now(),
	}
	if err := s.slots.Put(ctx, snap); err != nil {
		s.log.Warn("store slot snapshot failed", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.IndexTableParsed.Inc()
		s.metrics.OccupiedSlots.Set(float64(len(ids)))
	}
}

// journalExchange 帧日志写入失败只记录告警，不影响本次结果
func (s *Fingerprint) journalExchange(ctx context.Context, ex *link.Exchange) {
	if s.journal == nil {
		return
	}
	addr := s.codec.Address().String()
	recs := make([]*pgstorage.FrameRecord, 0, len(ex.Replies)+1)
	recs = append(recs, &pgstorage.FrameRecord{
		ExchangeID: ex.ID,
		Direction:  pgstorage.DirectionDown,
		Address:    addr,
		PacketType: zw.PacketCommand,
		Code:       ex.Request.Opcode,
		Raw:        ex.Request.Raw,
		Valid:      true,
	})
	for _, r := range ex.Replies {
		rec := &pgstorage.FrameRecord{
			ExchangeID: ex.ID,
			Direction:  pgstorage.DirectionUp,
			Address:    addr,
			Raw:        r.Raw,
			Valid:      r.Err == nil,
		}
		if len(r.Raw) > zw.PayloadAt {
			rec.PacketType = r.Raw[zw.PacketTypeAt]
			rec.Code = r.Raw[zw.PayloadAt]
		}
		if r.Err != nil {
			rec.ErrorKind = zw.KindOf(r.Err).String()
		}
		recs = append(recs, rec)
	}
	for _, rec := range recs {
		if err := s.journal.InsertFrame(ctx, rec); err != nil {
			s.log.Warn("frame journal insert failed", zap.String("exchange_id", ex.ID.String()), zap.Error(err))
			return
		}
	}
}

func (s *Fingerprint) countBuild(cmd zw.Command, result string) {
	if s.metrics == nil || cmd == nil {
		return
	}
	s.metrics.FramesBuilt.WithLabelValues(zw.OpcodeName(cmd.Opcode()), result).Inc()
}

func (s *Fingerprint) countValidation(err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = zw.KindOf(err).String()
	}
	s.metrics.FramesValidated.WithLabelValues(result).Inc()
}
