package zw

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okResponse = "EF01FFFFFFFF07000300000A"

func TestValidate_OK(t *testing.T) {
	c := NewCodec(ZW20, BroadcastAddress)
	raw := mustHex(t, okResponse)
	assert.NoError(t, c.Validate(raw, len(raw)))
}

func TestValidate_Gates(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		kind  FrameErrorKind
		want  error
	}{
		{"帧头错误", "EF02FFFFFFFF07000300000A", KindHeaderMismatch, ErrHeaderMismatch},
		{"地址错误", "EF010000000007000300000A", KindAddressMismatch, ErrAddressMismatch},
		{"包标识错误", "EF01FFFFFFFF06000300000A", KindPacketTypeMismatch, ErrPacketTypeMismatch},
		{"长度字段错误", "EF01FFFFFFFF07000200000A", KindLengthMismatch, ErrLengthMismatch},
		{"长度字段偏大", "EF01FFFFFFFF07000400000B", KindLengthMismatch, ErrLengthMismatch},
		{"校验和错误", "EF01FFFFFFFF07000300000B", KindChecksumMismatch, ErrChecksumMismatch},
		// 同时有多处错误时报告最先失败的关卡
		{"帧头与校验和均错", "EF02FFFFFFFF07000300000B", KindHeaderMismatch, ErrHeaderMismatch},
		{"地址与长度均错", "EF010000000007000200000A", KindAddressMismatch, ErrAddressMismatch},
		{"包标识与校验和均错", "EF01FFFFFFFF01000300000A", KindPacketTypeMismatch, ErrPacketTypeMismatch},
	}
	c := NewCodec(ZW20, BroadcastAddress)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := mustHex(t, tt.frame)
			err := c.Validate(raw, len(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestValidate_TooShort(t *testing.T) {
	c := NewCodec(ZW20, BroadcastAddress)
	raw := mustHex(t, okResponse)

	err := c.Validate(raw[:11], 11)
	assert.ErrorIs(t, err, ErrFrameTooShort)

	// n 超过缓冲区也按过短处理
	err = c.Validate(raw, len(raw)+1)
	assert.ErrorIs(t, err, ErrFrameTooShort)

	err = c.Validate(nil, 0)
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestValidate_LengthDisagreesWithN(t *testing.T) {
	c := NewCodec(ZW20, BroadcastAddress)
	raw := append(mustHex(t, okResponse), 0x00)
	err := c.Validate(raw, len(raw))
	assert.Equal(t, KindLengthMismatch, KindOf(err))

	// 只取前 n 个字节时合法
	assert.NoError(t, c.Validate(raw, len(raw)-1))
}

func TestValidate_ErrorDetail(t *testing.T) {
	c := NewCodec(ZW20, BroadcastAddress)
	raw := mustHex(t, "EF01FFFFFFFF07000300000B")
	err := c.Validate(raw, len(raw))
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "000A", fe.Want)
	assert.Equal(t, "000B", fe.Got)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestFrameError_UnknownKind(t *testing.T) {
	var fe FrameError
	assert.Equal(t, "unknown frame error", fe.Error())
	assert.NotNil(t, fe.Unwrap())

	fe = FrameError{Kind: FrameErrorKind(99), Want: "00", Got: "01"}
	assert.Equal(t, "unknown frame error: want 00, got 01", fe.Error())
	assert.NotErrorIs(t, &fe, ErrChecksumMismatch)
}

func TestValidate_SetAddress(t *testing.T) {
	c := NewCodec(ZW20, BroadcastAddress)
	custom := mustHex(t, "EF011234567807000300000A")
	assert.Equal(t, KindAddressMismatch, KindOf(c.Validate(custom, len(custom))))

	c.SetAddress(Address{0x12, 0x34, 0x56, 0x78})
	assert.NoError(t, c.Validate(custom, len(custom)))

	def := mustHex(t, okResponse)
	assert.Equal(t, KindAddressMismatch, KindOf(c.Validate(def, len(def))))
}

func TestCodec_ConcurrentAddressSwap(t *testing.T) {
	a := BroadcastAddress
	b := Address{0x12, 0x34, 0x56, 0x78}
	c := NewCodec(ZW20, a)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				c.SetAddress(b)
			} else {
				c.SetAddress(a)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			enc, err := c.Build(Handshake{})
			if !assert.NoError(t, err) {
				return
			}
			got := Address(enc.Raw[HeaderSize : HeaderSize+AddressSize])
			assert.True(t, got == a || got == b, "torn address %s", got)
		}
	}()
	wg.Wait()
}

func TestDecode(t *testing.T) {
	c := NewCodec(ZW20, BroadcastAddress)
	raw := mustHex(t, "EF01FFFFFFFF0700050006050017")
	f, err := c.Decode(raw, len(raw))
	require.NoError(t, err)
	assert.Equal(t, PacketResponse, f.PacketType)
	assert.Equal(t, uint16(5), f.Length)
	assert.Equal(t, []byte{0x00, 0x06, 0x05}, f.Payload)
	assert.Equal(t, uint16(0x0017), f.Checksum)

	// Payload 不引用调用方缓冲
	raw[PayloadAt] = 0xAA
	assert.Equal(t, byte(0x00), f.Payload[0])
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"", BroadcastAddress, false},
		{"FFFFFFFF", BroadcastAddress, false},
		{"0x12345678", Address{0x12, 0x34, 0x56, 0x78}, false},
		{"12 34 56 78", Address{0x12, 0x34, 0x56, 0x78}, false},
		{"123456", Address{}, true},
		{"ZZZZZZZZ", Address{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got.String(), 8)
		})
	}
}
