package zw

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DefaultScoreLevel AutoIdentify 默认分数等级
const DefaultScoreLevel byte = 0x12

// Command 指令描述（按指令区分参数集合）
// 由本包的具体类型实现：AutoEnroll、AutoIdentify、ControlLED、DeleteChar、
// Empty、Cancel、Sleep、Handshake、ReadIndexTable
type Command interface {
	Opcode() byte
	// appendParams 校验参数并追加指令码之后的参数字节
	appendParams(dst []byte, v Variant) ([]byte, []Warning, error)
}

// AutoEnroll 自动注册
type AutoEnroll struct {
	ID              uint16 `json:"id"`
	EnrollTimes     byte   `json:"enroll_times"`       // 0-5，0 与 1 效果相同
	LEDOffOnCapture bool   `json:"led_off_on_capture"` // bit0：采图成功后熄灭背光
	Preprocess      bool   `json:"preprocess"`         // bit1：开启采图预处理
	SuppressStatus  bool   `json:"suppress_status"`    // bit2：不返回注册过程状态
	AllowOverwrite  bool   `json:"allow_overwrite"`    // bit3：允许覆盖已有 ID
	ForbidDuplicate bool   `json:"forbid_duplicate"`   // bit4：禁止重复注册
	NoFingerLeave   bool   `json:"no_finger_leave"`    // bit5：采图间无需手指离开
}

func (AutoEnroll) Opcode() byte { return OpAutoEnroll }

// Flags 组装 param 位域
func (c AutoEnroll) Flags() uint16 {
	return packFlags(c.LEDOffOnCapture, c.Preprocess, c.SuppressStatus, c.AllowOverwrite, c.ForbidDuplicate, c.NoFingerLeave)
}

func (c AutoEnroll) appendParams(dst []byte, v Variant) ([]byte, []Warning, error) {
	if v.CheckEnrollID && int(c.ID) >= v.Capacity {
		return nil, nil, &ParamError{Command: "auto_enroll", Field: "id", Value: int(c.ID), Min: 0, Max: v.Capacity - 1}
	}
	if c.EnrollTimes > v.MaxEnrollTimes {
		return nil, nil, &ParamError{Command: "auto_enroll", Field: "enroll_times", Value: int(c.EnrollTimes), Min: 0, Max: int(v.MaxEnrollTimes)}
	}
	dst = binary.BigEndian.AppendUint16(dst, c.ID)
	dst = append(dst, c.EnrollTimes)
	dst = binary.BigEndian.AppendUint16(dst, c.Flags())
	return dst, nil, nil
}

// AutoIdentify 自动识别；ID 不做容量校验，MatchAll 表示比对全部
type AutoIdentify struct {
	ID              uint16 `json:"id"`
	ScoreLevel      byte   `json:"score_level"`
	LEDOffOnCapture bool   `json:"led_off_on_capture"`
	Preprocess      bool   `json:"preprocess"`
	SuppressStatus  bool   `json:"suppress_status"`
}

func (AutoIdentify) Opcode() byte { return OpAutoIdentify }

func (c AutoIdentify) Flags() uint16 {
	return packFlags(c.LEDOffOnCapture, c.Preprocess, c.SuppressStatus)
}

// 线序：分数等级在前，ID 在后
func (c AutoIdentify) appendParams(dst []byte, _ Variant) ([]byte, []Warning, error) {
	dst = append(dst, c.ScoreLevel)
	dst = binary.BigEndian.AppendUint16(dst, c.ID)
	dst = binary.BigEndian.AppendUint16(dst, c.Flags())
	return dst, nil, nil
}

// ControlLED 背光灯控制
// EndColor 仅呼吸灯有效；Cycles 仅呼吸/闪烁有效，0 表示无限循环
type ControlLED struct {
	Function   byte `json:"function"`
	StartColor byte `json:"start_color"`
	EndColor   byte `json:"end_color"`
	Cycles     byte `json:"cycles"`
}

func (ControlLED) Opcode() byte { return OpControlLED }

func (c ControlLED) appendParams(dst []byte, v Variant) ([]byte, []Warning, error) {
	if c.Function < LEDBreath || c.Function > v.MaxLEDFunction {
		return nil, nil, &ParamError{Command: "control_led", Field: "function", Value: int(c.Function), Min: int(LEDBreath), Max: int(v.MaxLEDFunction)}
	}
	start, end := c.StartColor, c.EndColor
	var warns []Warning
	// 七彩模式颜色字节原样下发
	if c.Function != LEDColorful {
		if start&^colorMask != 0 {
			warns = append(warns, Warning{Kind: WarnColorBitsTruncated, Field: "start_color", From: start, To: start & colorMask})
			start &= colorMask
		}
		if end&^colorMask != 0 {
			warns = append(warns, Warning{Kind: WarnColorBitsTruncated, Field: "end_color", From: end, To: end & colorMask})
			end &= colorMask
		}
	}
	dst = append(dst, c.Function, start, end, c.Cycles)
	return dst, warns, nil
}

// DeleteChar 从 ID 开始删除 Count 枚指纹
type DeleteChar struct {
	ID    uint16 `json:"id"`
	Count uint16 `json:"count"`
}

func (DeleteChar) Opcode() byte { return OpDeleteChar }

func (c DeleteChar) appendParams(dst []byte, v Variant) ([]byte, []Warning, error) {
	if int(c.ID) >= v.Capacity {
		return nil, nil, &ParamError{Command: "delete_char", Field: "id", Value: int(c.ID), Min: 0, Max: v.Capacity - 1}
	}
	if c.Count == 0 || int(c.Count) > v.MaxDeleteCount {
		return nil, nil, &ParamError{Command: "delete_char", Field: "count", Value: int(c.Count), Min: 1, Max: v.MaxDeleteCount}
	}
	dst = binary.BigEndian.AppendUint16(dst, c.ID)
	dst = binary.BigEndian.AppendUint16(dst, c.Count)
	return dst, nil, nil
}

// Empty 清空指纹库
type Empty struct{}

func (Empty) Opcode() byte { return OpEmpty }
func (Empty) appendParams(dst []byte, _ Variant) ([]byte, []Warning, error) { return dst, nil, nil }

// Cancel 取消当前自动注册/识别
type Cancel struct{}

func (Cancel) Opcode() byte { return OpCancel }
func (Cancel) appendParams(dst []byte, _ Variant) ([]byte, []Warning, error) { return dst, nil, nil }

// Sleep 进入休眠
type Sleep struct{}

func (Sleep) Opcode() byte { return OpSleep }
func (Sleep) appendParams(dst []byte, _ Variant) ([]byte, []Warning, error) { return dst, nil, nil }

// Handshake 握手，模块正常时应答确认码 0x00
type Handshake struct{}

func (Handshake) Opcode() byte { return OpHandshake }
func (Handshake) appendParams(dst []byte, _ Variant) ([]byte, []Warning, error) { return dst, nil, nil }

// ReadIndexTable 读索引表
type ReadIndexTable struct {
	Page byte `json:"page"`
}

func (ReadIndexTable) Opcode() byte { return OpReadIndexTable }

func (c ReadIndexTable) appendParams(dst []byte, v Variant) ([]byte, []Warning, error) {
	if c.Page > v.MaxIndexPage {
		return nil, nil, &ParamError{Command: "read_index_table", Field: "page", Value: int(c.Page), Min: 0, Max: int(v.MaxIndexPage)}
	}
	return append(dst, c.Page), nil, nil
}

// packFlags 按 bit0、bit1... 的顺序组装布尔位
func packFlags(bits ...bool) uint16 {
	var p uint16
	for i, b := range bits {
		if b {
			p |= 1 << i
		}
	}
	return p
}

// NewCommand 按指令名称返回可供 JSON 解码的零值命令（指针）
func NewCommand(name string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "auto_enroll":
		return &AutoEnroll{}, nil
	case "auto_identify":
		return &AutoIdentify{ID: MatchAll, ScoreLevel: DefaultScoreLevel}, nil
	case "control_led":
		return &ControlLED{}, nil
	case "delete_char":
		return &DeleteChar{}, nil
	case "empty":
		return &Empty{}, nil
	case "cancel":
		return &Cancel{}, nil
	case "sleep":
		return &Sleep{}, nil
	case "handshake":
		return &Handshake{}, nil
	case "read_index_table":
		return &ReadIndexTable{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrUnsupportedCommand, name)
	}
}
