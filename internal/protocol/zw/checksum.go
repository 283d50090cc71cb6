package zw

import (
	"encoding/binary"
	"errors"
)

// ErrChecksumRange 帧长度不足以覆盖校验范围；不返回 0，避免与合法的 0 校验和混淆
var ErrChecksumRange = errors.New("frame too short for checksum range")

// Checksum 计算累加校验和
// 范围：raw[6] 到 raw[n-3]（包标识到校验和前一字节），uint16 自然溢出
func Checksum(raw []byte, n int) (uint16, error) {
	if n <= ChecksumStart+ChecksumSize || n > len(raw) {
		return 0, ErrChecksumRange
	}
	var sum uint16
	for _, b := range raw[ChecksumStart : n-ChecksumSize] {
		sum += uint16(b)
	}
	return sum, nil
}

// putChecksum 计算并写入末尾2字节（高字节在前）
func putChecksum(frame []byte) error {
	sum, err := Checksum(frame, len(frame))
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(frame[len(frame)-ChecksumSize:], sum)
	return nil
}

// trailingChecksum 读取帧末尾的校验和
func trailingChecksum(raw []byte, n int) uint16 {
	return binary.BigEndian.Uint16(raw[n-ChecksumSize : n])
}
