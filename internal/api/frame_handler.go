package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/zw-fingerprint/internal/link"
	"github.com/taoyao-code/zw-fingerprint/internal/protocol/zw"
	"github.com/taoyao-code/zw-fingerprint/internal/service"
	"github.com/taoyao-code/zw-fingerprint/internal/slotcache"
)

// 单次下发允许的最长等待，AutoEnroll 需要多次按压
const maxCommandTimeout = 60 * time.Second

// FrameHandler 帧调试控制台
type FrameHandler struct {
	svc    *service.Fingerprint
	logger *zap.Logger
}

// NewFrameHandler 创建处理器
func NewFrameHandler(svc *service.Fingerprint, logger *zap.Logger) *FrameHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameHandler{svc: svc, logger: logger}
}

// CommandRequest 构帧/下发请求
type CommandRequest struct {
	Command   string          `json:"command" binding:"required"` // auto_enroll / control_led / ...
	Params    json.RawMessage `json:"params"`
	TimeoutMS int             `json:"timeout_ms"` // 仅下发使用
}

// HexRequest 十六进制帧
type HexRequest struct {
	Hex string `json:"hex" binding:"required"`
}

// AddressRequest 设备地址
type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

// BuiltFrame 构帧结果
type BuiltFrame struct {
	Command  string       `json:"command"`
	Opcode   string       `json:"opcode"`
	Hex      string       `json:"hex"`
	Length   int          `json:"length"`
	Warnings []zw.Warning `json:"warnings"`
}

// FrameView 校验通过的帧
type FrameView struct {
	Address    string `json:"address"`
	PacketType string `json:"packet_type"`
	Length     int    `json:"length"`
	Code       string `json:"code"`
	Confirm    string `json:"confirm"`
	Params     string `json:"params"`
	Checksum   string `json:"checksum"`
}

// ValidateResult 校验结果，失败时 Kind 为首个失败关卡
type ValidateResult struct {
	Valid bool       `json:"valid"`
	Kind  string     `json:"kind,omitempty"`
	Error string     `json:"error,omitempty"`
	Frame *FrameView `json:"frame,omitempty"`
}

// ReplyView 设备应答
type ReplyView struct {
	Hex     string              `json:"hex"`
	Confirm string              `json:"confirm,omitempty"`
	Code    int                 `json:"code"`
	Params  string              `json:"params,omitempty"`
	Error   string              `json:"error,omitempty"`
	Enroll  *zw.EnrollStatus    `json:"enroll,omitempty"`
	Match   *zw.IdentifyOutcome `json:"identify,omitempty"`
}

// ExchangeView 一次下发的收发记录
type ExchangeView struct {
	ExchangeID string       `json:"exchange_id"`
	Request    string       `json:"request"`
	Replies    []ReplyView  `json:"replies"`
	ElapsedMS  int64        `json:"elapsed_ms"`
	Warnings   []zw.Warning `json:"warnings"`
	Slots      []int        `json:"slots,omitempty"`
}

// BuildFrame 构造命令帧（不下发）
// POST /api/v1/frames/build
func (h *FrameHandler) BuildFrame(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err), nil)
		return
	}
	cmd, err := decodeCommand(req.Command, req.Params)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	enc, err := h.svc.Build(cmd)
	if err != nil {
		respondBuildError(c, err)
		return
	}
	respondOK(c, builtFrame(req.Command, enc))
}

// ValidateFrame 校验应答帧；帧不合法仍返回 200，由 valid 字段区分
// POST /api/v1/frames/validate
func (h *FrameHandler) ValidateFrame(c *gin.Context) {
	raw, ok := bindHex(c)
	if !ok {
		return
	}
	f, err := h.svc.Validate(raw)
	if err != nil {
		respondOK(c, ValidateResult{Valid: false, Kind: zw.KindOf(err).String(), Error: err.Error()})
		return
	}
	respondOK(c, ValidateResult{Valid: true, Frame: frameView(f)})
}

// ParseIndexTable 解析读索引表应答并刷新槽位快照
// POST /api/v1/frames/index-table
func (h *FrameHandler) ParseIndexTable(c *gin.Context) {
	raw, ok := bindHex(c)
	if !ok {
		return
	}
	ids, err := h.svc.ParseIndexTable(c.Request.Context(), raw)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, err.Error(), gin.H{"kind": zw.KindOf(err).String()})
		return
	}
	respondOK(c, gin.H{"slots": ids, "count": len(ids)})
}

// GetSlots 最近一次的槽位快照
// GET /api/v1/slots
func (h *FrameHandler) GetSlots(c *gin.Context) {
	snap, err := h.svc.Slots(c.Request.Context())
	if errors.Is(err, slotcache.ErrNotFound) {
		respondError(c, http.StatusNotFound, "尚未读取索引表", nil)
		return
	}
	if err != nil {
		h.logger.Error("load slot snapshot failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "读取槽位快照失败", nil)
		return
	}
	data := gin.H{"snapshot": snap}
	if next, ok := snap.NextFree(); ok {
		data["next_free"] = next
	}
	respondOK(c, data)
}

// SendCommand 构帧并下发到设备
// POST /api/v1/device/commands
func (h *FrameHandler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err), nil)
		return
	}
	cmd, err := decodeCommand(req.Command, req.Params)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx := c.Request.Context()
	if req.TimeoutMS > 0 {
		timeout := time.Duration(req.TimeoutMS) * time.Millisecond
		if timeout > maxCommandTimeout {
			timeout = maxCommandTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := h.svc.Send(ctx, cmd)
	if err != nil {
		var view *ExchangeView
		if res != nil && res.Exchange != nil {
			view = exchangeView(res)
		}
		switch {
		case errors.Is(err, service.ErrLinkDisabled):
			respondError(c, http.StatusServiceUnavailable, err.Error(), nil)
		case errors.Is(err, zw.ErrParameterOutOfRange), errors.Is(err, zw.ErrUnsupportedCommand):
			respondBuildError(c, err)
		case errors.Is(err, link.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			respondError(c, http.StatusGatewayTimeout, err.Error(), view)
		default:
			h.logger.Warn("device command failed", zap.String("command", req.Command), zap.Error(err))
			respondError(c, http.StatusBadGateway, err.Error(), view)
		}
		return
	}
	respondOK(c, exchangeView(res))
}

// GetDevice 当前型号与地址
// GET /api/v1/device
func (h *FrameHandler) GetDevice(c *gin.Context) {
	codec := h.svc.Codec()
	respondOK(c, gin.H{
		"variant":      codec.Variant(),
		"address":      codec.Address().String(),
		"link_enabled": h.svc.LinkEnabled(),
	})
}

// SetAddress 修改编解码使用的设备地址
// PUT /api/v1/device/address
func (h *FrameHandler) SetAddress(c *gin.Context) {
	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err), nil)
		return
	}
	addr, err := zw.ParseAddress(req.Address)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	old := h.svc.Codec().Address()
	h.svc.Codec().SetAddress(addr)
	h.logger.Info("device address changed", zap.String("from", old.String()), zap.String("to", addr.String()))
	respondOK(c, gin.H{"address": addr.String()})
}

// decodeCommand 按指令名解出参数；未知字段视为错误
func decodeCommand(name string, params json.RawMessage) (zw.Command, error) {
	cmd, err := zw.NewCommand(name)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(params)) == 0 || string(bytes.TrimSpace(params)) == "null" {
		return cmd, nil
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cmd); err != nil {
		return nil, fmt.Errorf("invalid params for %s: %w", name, err)
	}
	return cmd, nil
}

func respondBuildError(c *gin.Context, err error) {
	var pe *zw.ParamError
	if errors.As(err, &pe) {
		respondError(c, http.StatusBadRequest, err.Error(), gin.H{
			"field": pe.Field,
			"value": pe.Value,
			"min":   pe.Min,
			"max":   pe.Max,
		})
		return
	}
	respondError(c, http.StatusBadRequest, err.Error(), nil)
}

// bindHex 解析请求中的十六进制帧，允许空格与 0x 前缀
func bindHex(c *gin.Context) ([]byte, bool) {
	var req HexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err), nil)
		return nil, false
	}
	raw, err := decodeHex(req.Hex)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), nil)
		return nil, false
	}
	return raw, true
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.Join(strings.Fields(s), "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return raw, nil
}

func upperHex(b []byte) string { return strings.ToUpper(hex.EncodeToString(b)) }

func builtFrame(name string, enc *zw.Encoded) BuiltFrame {
	warns := enc.Warnings
	if warns == nil {
		warns = []zw.Warning{}
	}
	return BuiltFrame{
		Command:  name,
		Opcode:   fmt.Sprintf("%02X", enc.Opcode),
		Hex:      enc.Hex(),
		Length:   len(enc.Raw),
		Warnings: warns,
	}
}

func frameView(f *zw.Frame) *FrameView {
	v := &FrameView{
		Address:    f.Address.String(),
		PacketType: zw.PacketTypeName(f.PacketType),
		Length:     int(f.Length),
		Code:       fmt.Sprintf("%02X", f.Payload[0]),
		Params:     upperHex(f.Payload[1:]),
		Checksum:   fmt.Sprintf("%04X", f.Checksum),
	}
	if f.PacketType == zw.PacketResponse {
		v.Confirm = zw.ConfirmCode(f.Payload[0]).String()
	}
	return v
}

func exchangeView(res *service.SendResult) *ExchangeView {
	ex := res.Exchange
	v := &ExchangeView{
		ExchangeID: ex.ID.String(),
		Request:    ex.Request.Hex(),
		Replies:    make([]ReplyView, 0, len(ex.Replies)),
		ElapsedMS:  ex.Elapsed.Milliseconds(),
		Warnings:   res.Warnings,
		Slots:      res.Slots,
	}
	if v.Warnings == nil {
		v.Warnings = []zw.Warning{}
	}
	for _, r := range ex.Replies {
		rv := ReplyView{Hex: upperHex(r.Raw)}
		if r.Err != nil {
			rv.Error = r.Err.Error()
			v.Replies = append(v.Replies, rv)
			continue
		}
		rv.Code = int(r.Response.Confirm)
		rv.Confirm = r.Response.Confirm.String()
		rv.Params = upperHex(r.Response.Params)
		switch ex.Request.Opcode {
		case zw.OpAutoEnroll:
			if st, err := zw.EnrollStatusOf(r.Response); err == nil {
				rv.Enroll = &st
			}
		case zw.OpAutoIdentify:
			if out, err := zw.IdentifyOutcomeOf(r.Response); err == nil {
				rv.Match = &out
			}
		}
		v.Replies = append(v.Replies, rv)
	}
	return v
}
