package zw

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// makeResponse 组装一帧应答（校验和按累加规则写入）
func makeResponse(addr Address, confirm byte, params ...byte) []byte {
	total := FrameLength(len(params))
	f := make([]byte, 0, total)
	f = append(f, Header[:]...)
	f = append(f, addr[:]...)
	f = append(f, PacketResponse, byte((total-LengthOverhead)>>8), byte(total-LengthOverhead), confirm)
	f = append(f, params...)
	var sum uint16
	for _, b := range f[ChecksumStart:] {
		sum += uint16(b)
	}
	return append(f, byte(sum>>8), byte(sum))
}
