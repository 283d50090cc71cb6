package zw

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// 帧结构常量
// 格式：header(2) + addr(4) + pid(1) + len(2) + [opcode|confirm](1) + params(var) + sum(2)
const (
	HeaderSize     = 2
	AddressSize    = 4
	ChecksumSize   = 2
	ChecksumStart  = 6 // 校验和从包标识开始累加
	PacketTypeAt   = 6
	LengthAt       = 7
	PayloadAt      = 9
	LengthOverhead = 9 // header + addr + pid + len

	// MinFrameLength 最小应答帧长度：无参数应答 = 9 + confirm(1) + sum(2)
	MinFrameLength = 12

	// MaxFrameLength 流式解码保护上限（len 字段最大 0xFFFF，实际模块远小于此）
	MaxFrameLength = 512
)

// 包标识
const (
	PacketCommand  byte = 0x01 // 命令包
	PacketDataMore byte = 0x02 // 数据包（有后续包）
	PacketResponse byte = 0x07 // 应答包
	PacketDataLast byte = 0x08 // 最后一个数据包
)

// 指令码
const (
	OpDeleteChar     byte = 0x0C
	OpEmpty          byte = 0x0D
	OpReadIndexTable byte = 0x1F
	OpCancel         byte = 0x30
	OpAutoEnroll     byte = 0x31
	OpAutoIdentify   byte = 0x32
	OpSleep          byte = 0x33
	OpHandshake      byte = 0x35
	OpControlLED     byte = 0x3C
)

// Header 固定帧头
var Header = [HeaderSize]byte{0xEF, 0x01}

// Address 模块地址（4字节，高字节在前）
type Address [AddressSize]byte

// BroadcastAddress 出厂默认地址
var BroadcastAddress = Address{0xFF, 0xFF, 0xFF, 0xFF}

// String 返回大写十六进制
func (a Address) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

// ParseAddress 解析 "FFFFFFFF" / "0xFFFFFFFF" / "FF FF FF FF" 形式的地址
func ParseAddress(s string) (Address, error) {
	var a Address
	clean := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	clean = strings.ReplaceAll(clean, " ", "")
	if clean == "" {
		return BroadcastAddress, nil
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("parse address %q: need %d bytes, got %d", s, AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// PacketTypeName 包标识名称（日志与控制台使用）
func PacketTypeName(pid byte) string {
	switch pid {
	case PacketCommand:
		return "command"
	case PacketDataMore:
		return "data_more"
	case PacketResponse:
		return "response"
	case PacketDataLast:
		return "data_last"
	default:
		return fmt.Sprintf("0x%02X", pid)
	}
}

// OpcodeName 指令名称
func OpcodeName(op byte) string {
	switch op {
	case OpAutoEnroll:
		return "auto_enroll"
	case OpAutoIdentify:
		return "auto_identify"
	case OpControlLED:
		return "control_led"
	case OpDeleteChar:
		return "delete_char"
	case OpEmpty:
		return "empty"
	case OpCancel:
		return "cancel"
	case OpSleep:
		return "sleep"
	case OpHandshake:
		return "handshake"
	case OpReadIndexTable:
		return "read_index_table"
	default:
		return fmt.Sprintf("0x%02X", op)
	}
}

// FrameLength 给定参数字节数时的完整帧长度
func FrameLength(paramLen int) int {
	return LengthOverhead + 1 + paramLen + ChecksumSize
}
