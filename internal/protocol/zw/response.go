package zw

import (
	"encoding/binary"
	"fmt"
)

// ConfirmCode 应答确认码（应答帧 payload 第一个字节）
type ConfirmCode byte

const (
	ConfirmOK             ConfirmCode = 0x00
	ConfirmPacketError    ConfirmCode = 0x01
	ConfirmNoFinger       ConfirmCode = 0x02
	ConfirmImageFailed    ConfirmCode = 0x03
	ConfirmImageMessy     ConfirmCode = 0x06
	ConfirmFewFeatures    ConfirmCode = 0x07
	ConfirmNotMatch       ConfirmCode = 0x08
	ConfirmNotFound       ConfirmCode = 0x09
	ConfirmMergeFailed    ConfirmCode = 0x0A
	ConfirmIDOutOfRange   ConfirmCode = 0x0B
	ConfirmReadTemplate   ConfirmCode = 0x0C
	ConfirmDeleteFailed   ConfirmCode = 0x10
	ConfirmEmptyFailed    ConfirmCode = 0x11
	ConfirmNoValidImage   ConfirmCode = 0x15
	ConfirmResidualFinger ConfirmCode = 0x17
	ConfirmFlashError     ConfirmCode = 0x18
	ConfirmLibraryFull    ConfirmCode = 0x1F
	ConfirmIDOccupied     ConfirmCode = 0x22
	ConfirmLibraryEmpty   ConfirmCode = 0x24
	ConfirmEnrollTimes    ConfirmCode = 0x25
	ConfirmTimeout        ConfirmCode = 0x26
	ConfirmDuplicate      ConfirmCode = 0x27
)

var confirmNames = map[ConfirmCode]string{
	ConfirmOK:             "ok",
	ConfirmPacketError:    "packet receive error",
	ConfirmNoFinger:       "no finger on sensor",
	ConfirmImageFailed:    "image capture failed",
	ConfirmImageMessy:     "image too messy",
	ConfirmFewFeatures:    "too few feature points",
	ConfirmNotMatch:       "fingerprint not matched",
	ConfirmNotFound:       "fingerprint not found",
	ConfirmMergeFailed:    "feature merge failed",
	ConfirmIDOutOfRange:   "id out of range",
	ConfirmReadTemplate:   "read template failed",
	ConfirmDeleteFailed:   "delete failed",
	ConfirmEmptyFailed:    "empty library failed",
	ConfirmNoValidImage:   "no valid image in buffer",
	ConfirmResidualFinger: "residual finger",
	ConfirmFlashError:     "flash read/write error",
	ConfirmLibraryFull:    "fingerprint library full",
	ConfirmIDOccupied:     "id already occupied",
	ConfirmLibraryEmpty:   "fingerprint library empty",
	ConfirmEnrollTimes:    "enroll times invalid",
	ConfirmTimeout:        "timeout",
	ConfirmDuplicate:      "fingerprint already enrolled",
}

func (c ConfirmCode) String() string {
	if s, ok := confirmNames[c]; ok {
		return s
	}
	return fmt.Sprintf("confirm code 0x%02X", byte(c))
}

// OK 是否成功
func (c ConfirmCode) OK() bool { return c == ConfirmOK }

// Response 应答帧内容
type Response struct {
	Confirm ConfirmCode `json:"confirm"`
	Params  []byte      `json:"params"`
}

// ParseResponse 校验应答帧并拆出确认码与后续参数
func (c *Codec) ParseResponse(raw []byte, n int) (*Response, error) {
	f, err := c.Decode(raw, n)
	if err != nil {
		return nil, err
	}
	return &Response{Confirm: ConfirmCode(f.Payload[0]), Params: f.Payload[1:]}, nil
}

// EnrollStage AutoEnroll 过程阶段（param1）
type EnrollStage byte

const (
	EnrollCheck     EnrollStage = 0x00 // 指令合法性检测
	EnrollGetImage  EnrollStage = 0x01 // 采图
	EnrollGenChar   EnrollStage = 0x02 // 生成特征
	EnrollLeave     EnrollStage = 0x03 // 判断手指离开
	EnrollMerge     EnrollStage = 0x04 // 合并模板
	EnrollDuplicate EnrollStage = 0x05 // 注册检验
	EnrollStore     EnrollStage = 0x06 // 存储模板
)

// EnrollStatus AutoEnroll 过程应答
type EnrollStatus struct {
	Confirm ConfirmCode `json:"confirm"`
	Stage   EnrollStage `json:"stage"`
	Times   byte        `json:"times"` // 当前第几次采图
}

// Done 是否已完成存储
func (s EnrollStatus) Done() bool { return s.Confirm.OK() && s.Stage == EnrollStore }

// EnrollStatusOf 解析 AutoEnroll 应答参数
func EnrollStatusOf(r *Response) (EnrollStatus, error) {
	if len(r.Params) < 2 {
		return EnrollStatus{}, fmt.Errorf("enroll status: need 2 param bytes, got %d", len(r.Params))
	}
	return EnrollStatus{Confirm: r.Confirm, Stage: EnrollStage(r.Params[0]), Times: r.Params[1]}, nil
}

// IdentifyStage AutoIdentify 过程阶段
type IdentifyStage byte

const (
	IdentifyCheck    IdentifyStage = 0x00
	IdentifyGetImage IdentifyStage = 0x01
	IdentifyResult   IdentifyStage = 0x05
)

// IdentifyOutcome AutoIdentify 应答
type IdentifyOutcome struct {
	Confirm ConfirmCode   `json:"confirm"`
	Stage   IdentifyStage `json:"stage"`
	ID      uint16        `json:"id"`
	Score   uint16        `json:"score"`
}

// Matched 是否比对成功
func (o IdentifyOutcome) Matched() bool { return o.Confirm.OK() && o.Stage == IdentifyResult }

// IdentifyOutcomeOf 解析 AutoIdentify 应答参数：stage(1) + id(2) + score(2)
func IdentifyOutcomeOf(r *Response) (IdentifyOutcome, error) {
	if len(r.Params) < 5 {
		return IdentifyOutcome{}, fmt.Errorf("identify outcome: need 5 param bytes, got %d", len(r.Params))
	}
	return IdentifyOutcome{
		Confirm: r.Confirm,
		Stage:   IdentifyStage(r.Params[0]),
		ID:      binary.BigEndian.Uint16(r.Params[1:3]),
		Score:   binary.BigEndian.Uint16(r.Params[3:5]),
	}, nil
}
