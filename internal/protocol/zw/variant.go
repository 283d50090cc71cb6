package zw

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LED 功能码
const (
	LEDBreath   byte = 1 // 普通呼吸灯
	LEDFlash    byte = 2 // 闪烁灯
	LEDOn       byte = 3 // 常开灯
	LEDOff      byte = 4 // 常闭灯
	LEDFadeIn   byte = 5 // 渐开灯
	LEDFadeOut  byte = 6 // 渐闭灯
	LEDColorful byte = 7 // 七彩灯（仅部分型号）
)

// LED 颜色位：bit0 蓝，bit1 绿，bit2 红
const (
	ColorOff   byte = 0x00
	ColorBlue  byte = 0x01
	ColorGreen byte = 0x02
	ColorRed   byte = 0x04
	ColorAll   byte = 0x07
	colorMask  byte = 0x07
)

// MatchAll AutoIdentify 中表示比对全部已注册指纹的 ID
const MatchAll uint16 = 0xFFFF

// Variant 型号能力表
type Variant struct {
	Name           string   `yaml:"name" json:"name"`
	Capacity       int      `yaml:"capacity" json:"capacity"`               // 指纹库容量
	MaxLEDFunction byte     `yaml:"maxLedFunction" json:"max_led_function"` // 6 或 7（七彩）
	CheckEnrollID  bool     `yaml:"checkEnrollId" json:"check_enroll_id"`   // 注册时校验 ID < Capacity
	MaxEnrollTimes byte     `yaml:"maxEnrollTimes" json:"max_enroll_times"`
	MaxDeleteCount int      `yaml:"maxDeleteCount" json:"max_delete_count"`
	MaxIndexPage   byte     `yaml:"maxIndexPage" json:"max_index_page"`
	Commands       []string `yaml:"commands" json:"commands"` // 为空表示全部支持
}

// ColorfulLED 是否支持七彩灯模式
func (v Variant) ColorfulLED() bool { return v.MaxLEDFunction >= LEDColorful }

// Supports 判断型号是否支持该指令
func (v Variant) Supports(op byte) bool {
	if len(v.Commands) == 0 {
		return true
	}
	name := OpcodeName(op)
	for _, c := range v.Commands {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func (v Variant) validate() error {
	if v.Name == "" {
		return fmt.Errorf("variant name is empty")
	}
	if v.Capacity <= 0 || v.Capacity > IndexTableBytes*8 {
		return fmt.Errorf("variant %s: capacity %d out of range", v.Name, v.Capacity)
	}
	if v.MaxLEDFunction < LEDFadeOut || v.MaxLEDFunction > LEDColorful {
		return fmt.Errorf("variant %s: maxLedFunction %d out of range", v.Name, v.MaxLEDFunction)
	}
	if v.MaxDeleteCount <= 0 {
		return fmt.Errorf("variant %s: maxDeleteCount must be positive", v.Name)
	}
	return nil
}

// 内置型号
var (
	ZW20 = Variant{
		Name:           "ZW20",
		Capacity:       100,
		MaxLEDFunction: LEDColorful,
		CheckEnrollID:  true,
		MaxEnrollTimes: 5,
		MaxDeleteCount: 5,
		MaxIndexPage:   4,
	}
	ZW0623 = Variant{
		Name:           "ZW0623",
		Capacity:       100,
		MaxLEDFunction: LEDFadeOut,
		CheckEnrollID:  false,
		MaxEnrollTimes: 5,
		MaxDeleteCount: 5,
		MaxIndexPage:   4,
		Commands:       []string{"auto_enroll", "auto_identify", "control_led", "handshake"},
	}
)

// BuiltinVariants 内置能力表
func BuiltinVariants() map[string]Variant {
	return map[string]Variant{
		ZW20.Name:   ZW20,
		ZW0623.Name: ZW0623,
	}
}

type variantFile struct {
	Variants []Variant `yaml:"variants"`
}

// LoadVariants 从 YAML 加载额外的型号能力表，结果包含内置型号（同名覆盖）
func LoadVariants(path string) (map[string]Variant, error) {
	out := BuiltinVariants()
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variants: %w", err)
	}
	var vf variantFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("parse variants: %w", err)
	}
	for _, v := range vf.Variants {
		v.Name = strings.ToUpper(v.Name)
		if v.MaxEnrollTimes == 0 {
			v.MaxEnrollTimes = 5
		}
		if err := v.validate(); err != nil {
			return nil, err
		}
		out[v.Name] = v
	}
	return out, nil
}

// LookupVariant 按名称查找型号（大小写不敏感）
func LookupVariant(table map[string]Variant, name string) (Variant, error) {
	if table == nil {
		table = BuiltinVariants()
	}
	v, ok := table[strings.ToUpper(name)]
	if !ok {
		return Variant{}, fmt.Errorf("unknown variant %q", name)
	}
	return v, nil
}
