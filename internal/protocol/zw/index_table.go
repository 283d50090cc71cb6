package zw

import "fmt"

// 索引表位图在应答帧中的位置：确认码之后的 13 字节
const (
	IndexTableAt    = 10
	IndexTableBytes = 13
)

// minIndexTableFrame 携带完整位图所需的最小帧长
const minIndexTableFrame = IndexTableAt + IndexTableBytes + ChecksumSize

// ParseIndexTable 解析读索引表应答，返回已注册的指纹 ID（升序）
// 先做完整帧校验，失败时原样返回校验错误。每字节低位在前，ID = 字节偏移*8 + 位号；
// 达到型号容量即停止。无指纹时返回空切片与 nil 错误。
func (c *Codec) ParseIndexTable(raw []byte, n int) ([]int, error) {
	if err := c.Validate(raw, n); err != nil {
		return nil, err
	}
	if n < minIndexTableFrame {
		return nil, frameErr(KindFrameTooShort, fmt.Sprintf(">=%d", minIndexTableFrame), fmt.Sprintf("%d", n))
	}
	return ScanIndexBitmap(raw[IndexTableAt:IndexTableAt+IndexTableBytes], c.variant.Capacity), nil
}

// ScanIndexBitmap 扫描位图，最多返回 limit 个 ID
func ScanIndexBitmap(bitmap []byte, limit int) []int {
	ids := make([]int, 0, 8)
	if limit <= 0 {
		return ids
	}
	for i, b := range bitmap {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) == 0 {
				continue
			}
			ids = append(ids, i*8+bit)
			if len(ids) >= limit {
				return ids
			}
		}
	}
	return ids
}
