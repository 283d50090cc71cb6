package zw

import "encoding/binary"

// StreamDecoder 处理串口半包/粘包的流式解码器
// 只做帧头、长度与校验和的同步，地址与包标识交给 Codec 校验。
type StreamDecoder struct {
	buf         []byte
	maxFrameLen int
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder(maxFrameLen int) *StreamDecoder {
	if maxFrameLen <= 0 {
		maxFrameLen = MaxFrameLength
	}
	return &StreamDecoder{maxFrameLen: maxFrameLen}
}

// Buffered 当前缓冲的未成帧字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Reset 丢弃缓冲
func (d *StreamDecoder) Reset() { d.buf = d.buf[:0] }

// Feed 追加数据并尽可能切出完整帧，返回的每一帧都是独立拷贝
func (d *StreamDecoder) Feed(p []byte) [][]byte {
	if len(p) == 0 {
		return nil
	}
	d.buf = append(d.buf, p...)
	var frames [][]byte

	for {
		start := indexHeader(d.buf)
		if start < 0 {
			// 保留最后1字节，帧头可能跨两次读取
			if len(d.buf) > 1 {
				d.buf = append(d.buf[:0], d.buf[len(d.buf)-1:]...)
			}
			return frames
		}
		if start > 0 {
			d.buf = d.buf[start:]
		}
		if len(d.buf) < PayloadAt {
			return frames
		}
		total := int(binary.BigEndian.Uint16(d.buf[LengthAt:PayloadAt])) + LengthOverhead
		if total < MinFrameLength || total > d.maxFrameLen {
			// 长度异常，滑动1字节重新同步
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < total {
			// 噪声里的假帧头会一直等待不存在的字节，后面已有完整合法帧时改为同步到该帧
			if next := d.completeFrameAfter(1); next > 0 {
				d.buf = d.buf[next:]
				continue
			}
			return frames
		}
		if !d.checksumOK(d.buf, total) {
			d.buf = d.buf[1:]
			continue
		}
		frames = append(frames, append([]byte(nil), d.buf[:total]...))
		d.buf = d.buf[total:]
		if len(d.buf) == 0 {
			return frames
		}
	}
}

// completeFrameAfter 从 from 起查找第一个完整且校验和正确的帧，返回其位置，没有则返回 -1
func (d *StreamDecoder) completeFrameAfter(from int) int {
	for i := from; i < len(d.buf); i++ {
		off := indexHeader(d.buf[i:])
		if off < 0 {
			return -1
		}
		i += off
		rest := d.buf[i:]
		if len(rest) < PayloadAt {
			return -1
		}
		total := int(binary.BigEndian.Uint16(rest[LengthAt:PayloadAt])) + LengthOverhead
		if total < MinFrameLength || total > d.maxFrameLen || len(rest) < total {
			continue
		}
		if d.checksumOK(rest, total) {
			return i
		}
	}
	return -1
}

func (d *StreamDecoder) checksumOK(b []byte, total int) bool {
	want, err := Checksum(b, total)
	return err == nil && trailingChecksum(b, total) == want
}

// indexHeader 返回下一个帧头位置
func indexHeader(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == Header[0] && b[i+1] == Header[1] {
			return i
		}
	}
	return -1
}
