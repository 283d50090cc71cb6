package zw

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
)

// Codec 帧编解码器
// 持有型号能力表与设备地址；地址通过原子指针整体替换，编解码始终读到完整的4字节。
// 除地址外无可变状态，可并发使用。
type Codec struct {
	variant Variant
	addr    atomic.Pointer[Address]
}

// NewCodec 创建编解码器
func NewCodec(v Variant, addr Address) *Codec {
	c := &Codec{variant: v}
	c.addr.Store(&addr)
	return c
}

// Variant 返回型号能力表
func (c *Codec) Variant() Variant { return c.variant }

// Address 返回当前设备地址
func (c *Codec) Address() Address { return *c.addr.Load() }

// SetAddress 重新配置设备地址
func (c *Codec) SetAddress(a Address) { c.addr.Store(&a) }

// Encoded 构帧结果
type Encoded struct {
	Opcode   byte
	Raw      []byte
	Warnings []Warning
}

// Hex 返回大写十六进制（便于日志与控制台）
func (e *Encoded) Hex() string { return strings.ToUpper(hex.EncodeToString(e.Raw)) }

// Build 构造命令帧
// 参数越界返回 *ParamError 且不产生任何帧；颜色位截断以 Warning 返回。
func (c *Codec) Build(cmd Command) (*Encoded, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil command")
	}
	op := cmd.Opcode()
	if !c.variant.Supports(op) {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, OpcodeName(op), c.variant.Name)
	}
	params, warns, err := cmd.appendParams(make([]byte, 0, 8), c.variant)
	if err != nil {
		return nil, err
	}

	addr := c.Address()
	total := FrameLength(len(params))
	frame := make([]byte, total)
	copy(frame[0:HeaderSize], Header[:])
	copy(frame[HeaderSize:HeaderSize+AddressSize], addr[:])
	frame[PacketTypeAt] = PacketCommand
	binary.BigEndian.PutUint16(frame[LengthAt:PayloadAt], uint16(total-LengthOverhead))
	frame[PayloadAt] = op
	copy(frame[PayloadAt+1:], params)
	if err := putChecksum(frame); err != nil {
		return nil, err
	}
	return &Encoded{Opcode: op, Raw: frame, Warnings: warns}, nil
}

// Validate 校验应答帧
// 按顺序检查：长度下限、帧头、地址、包标识、长度字段、校验和；首个失败的关卡即为返回的错误。
func (c *Codec) Validate(raw []byte, n int) error {
	return c.ValidateAs(raw, n, PacketResponse)
}

// ValidateAs 与 Validate 相同，但期望的包标识由调用方指定
func (c *Codec) ValidateAs(raw []byte, n int, packetType byte) error {
	if n < MinFrameLength || n > len(raw) {
		return frameErr(KindFrameTooShort, fmt.Sprintf(">=%d", MinFrameLength), fmt.Sprintf("%d (buffer %d)", n, len(raw)))
	}
	if raw[0] != Header[0] || raw[1] != Header[1] {
		return frameErr(KindHeaderMismatch, hexOf(Header[:]), hexOf(raw[0:HeaderSize]))
	}
	addr := c.Address()
	for i := 0; i < AddressSize; i++ {
		if raw[HeaderSize+i] != addr[i] {
			return frameErr(KindAddressMismatch, addr.String(), hexOf(raw[HeaderSize:HeaderSize+AddressSize]))
		}
	}
	if raw[PacketTypeAt] != packetType {
		return frameErr(KindPacketTypeMismatch, fmt.Sprintf("%02X", packetType), fmt.Sprintf("%02X", raw[PacketTypeAt]))
	}
	declared := int(binary.BigEndian.Uint16(raw[LengthAt:PayloadAt]))
	if declared+LengthOverhead != n {
		return frameErr(KindLengthMismatch, fmt.Sprintf("%d", n-LengthOverhead), fmt.Sprintf("%d", declared))
	}
	want, err := Checksum(raw, n)
	if err != nil {
		return err
	}
	if got := trailingChecksum(raw, n); got != want {
		return frameErr(KindChecksumMismatch, fmt.Sprintf("%04X", want), fmt.Sprintf("%04X", got))
	}
	return nil
}

// Frame 通过校验后的帧
type Frame struct {
	Address    Address
	PacketType byte
	Length     uint16
	Payload    []byte // 指令码/确认码 + 参数，不含校验和
	Checksum   uint16
}

// Decode 校验应答帧并拆出字段；Payload 为拷贝，不引用调用方缓冲区
func (c *Codec) Decode(raw []byte, n int) (*Frame, error) {
	return c.DecodeAs(raw, n, PacketResponse)
}

// DecodeAs 按指定包标识校验并拆帧
func (c *Codec) DecodeAs(raw []byte, n int, packetType byte) (*Frame, error) {
	if err := c.ValidateAs(raw, n, packetType); err != nil {
		return nil, err
	}
	f := &Frame{
		PacketType: raw[PacketTypeAt],
		Length:     binary.BigEndian.Uint16(raw[LengthAt:PayloadAt]),
		Payload:    append([]byte(nil), raw[PayloadAt:n-ChecksumSize]...),
		Checksum:   trailingChecksum(raw, n),
	}
	copy(f.Address[:], raw[HeaderSize:HeaderSize+AddressSize])
	return f, nil
}

func hexOf(b []byte) string { return strings.ToUpper(hex.EncodeToString(b)) }
