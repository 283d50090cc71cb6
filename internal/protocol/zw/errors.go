package zw

import (
	"errors"
	"fmt"
)

// 帧校验失败的哨兵错误，可用 errors.Is 判断
var (
	ErrFrameTooShort      = errors.New("frame too short")
	ErrHeaderMismatch     = errors.New("header mismatch")
	ErrAddressMismatch    = errors.New("address mismatch")
	ErrPacketTypeMismatch = errors.New("packet type mismatch")
	ErrLengthMismatch     = errors.New("length mismatch")
	ErrChecksumMismatch   = errors.New("checksum mismatch")

	ErrParameterOutOfRange = errors.New("parameter out of range")
	ErrUnsupportedCommand  = errors.New("command not supported by variant")
)

// FrameErrorKind 校验失败所在的关卡
type FrameErrorKind int

const (
	KindFrameTooShort FrameErrorKind = iota + 1
	KindHeaderMismatch
	KindAddressMismatch
	KindPacketTypeMismatch
	KindLengthMismatch
	KindChecksumMismatch
)

var kindSentinels = map[FrameErrorKind]error{
	KindFrameTooShort:      ErrFrameTooShort,
	KindHeaderMismatch:     ErrHeaderMismatch,
	KindAddressMismatch:    ErrAddressMismatch,
	KindPacketTypeMismatch: ErrPacketTypeMismatch,
	KindLengthMismatch:     ErrLengthMismatch,
	KindChecksumMismatch:   ErrChecksumMismatch,
}

// String 用作指标标签
func (k FrameErrorKind) String() string {
	switch k {
	case KindFrameTooShort:
		return "frame_too_short"
	case KindHeaderMismatch:
		return "header_mismatch"
	case KindAddressMismatch:
		return "address_mismatch"
	case KindPacketTypeMismatch:
		return "packet_type_mismatch"
	case KindLengthMismatch:
		return "length_mismatch"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	default:
		return "unknown"
	}
}

// FrameError 帧结构错误，Want/Got 用于诊断
type FrameError struct {
	Kind FrameErrorKind
	Want string
	Got  string
}

// errUnknownFrame Kind 未登记时的兜底
var errUnknownFrame = errors.New("unknown frame error")

func (e *FrameError) Error() string {
	if e.Want == "" && e.Got == "" {
		return e.Unwrap().Error()
	}
	return fmt.Sprintf("%s: want %s, got %s", e.Unwrap(), e.Want, e.Got)
}

// Unwrap 返回对应的哨兵错误
func (e *FrameError) Unwrap() error {
	if err, ok := kindSentinels[e.Kind]; ok {
		return err
	}
	return errUnknownFrame
}

func frameErr(kind FrameErrorKind, want, got string) *FrameError {
	return &FrameError{Kind: kind, Want: want, Got: got}
}

// KindOf 提取错误关卡，非 FrameError 返回 0
func KindOf(err error) FrameErrorKind {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// ParamError 命令参数越界，不产生任何帧
type ParamError struct {
	Command string
	Field   string
	Value   int
	Min     int
	Max     int
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s=%d out of range [%d, %d]", e.Command, e.Field, e.Value, e.Min, e.Max)
}

func (e *ParamError) Unwrap() error { return ErrParameterOutOfRange }

// WarningKind 非致命的参数修正
type WarningKind string

const WarnColorBitsTruncated WarningKind = "color_bits_truncated"

// Warning 构帧时对参数做过的修正
type Warning struct {
	Kind  WarningKind `json:"kind"`
	Field string      `json:"field"`
	From  byte        `json:"from"`
	To    byte        `json:"to"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s 0x%02X -> 0x%02X", w.Kind, w.Field, w.From, w.To)
}
