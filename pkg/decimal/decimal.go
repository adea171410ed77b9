// Package decimal 金额精度计算工具
package decimal

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimal 高精度十进制金额
type Decimal struct {
	value *big.Int // 最小单位整数
	scale int      // 小数位数
}

// Zero 零值
var Zero = &Decimal{value: big.NewInt(0), scale: 0}

// New 从字符串创建
func New(s string) (*Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, nil
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid decimal: %s", s)
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) > 1 {
		fracPart = parts[1]
	}

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}

	combined := intPart + fracPart
	value := new(big.Int)
	if _, ok := value.SetString(combined, 10); !ok {
		return nil, fmt.Errorf("invalid decimal: %s", s)
	}

	if negative {
		value.Neg(value)
	}

	return &Decimal{value: value, scale: len(fracPart)}, nil
}

// MustNew 从字符串创建，panic on error
func MustNew(s string) *Decimal {
	d, err := New(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt 从整数创建
func FromInt(v int64) *Decimal {
	return &Decimal{value: big.NewInt(v), scale: 0}
}

// String 转字符串，保留原始精度（10.00 × 3 输出 30.00 而非 30）
func (d *Decimal) String() string {
	if d == nil || d.value == nil {
		return "0"
	}

	s := d.value.String()
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	if d.scale == 0 {
		if negative {
			return "-" + s
		}
		return s
	}

	for len(s) <= d.scale {
		s = "0" + s
	}

	pos := len(s) - d.scale
	result := s[:pos] + "." + s[pos:]

	if negative {
		return "-" + result
	}
	return result
}

// Cmp 比较：-1 (d < other), 0 (d == other), 1 (d > other)
func (d *Decimal) Cmp(other *Decimal) int {
	d1, d2 := d.alignScale(other)
	return d1.value.Cmp(d2.value)
}

// Equal 数值相等
func (d *Decimal) Equal(other *Decimal) bool {
	return d.Cmp(other) == 0
}

// Add 加法
func (d *Decimal) Add(other *Decimal) *Decimal {
	d1, d2 := d.alignScale(other)
	result := new(big.Int).Add(d1.value, d2.value)
	return &Decimal{value: result, scale: d1.scale}
}

// Sub 减法
func (d *Decimal) Sub(other *Decimal) *Decimal {
	d1, d2 := d.alignScale(other)
	result := new(big.Int).Sub(d1.value, d2.value)
	return &Decimal{value: result, scale: d1.scale}
}

// Mul 乘法
func (d *Decimal) Mul(other *Decimal) *Decimal {
	result := new(big.Int).Mul(d.value, other.value)
	return &Decimal{value: result, scale: d.scale + other.scale}
}

// MulInt 乘以整数（单价 × 数量）
func (d *Decimal) MulInt(n int64) *Decimal {
	result := new(big.Int).Mul(d.value, big.NewInt(n))
	return &Decimal{value: result, scale: d.scale}
}

// IsZero 是否为零
func (d *Decimal) IsZero() bool {
	return d.value.Sign() == 0
}

// IsPositive 是否为正
func (d *Decimal) IsPositive() bool {
	return d.value.Sign() > 0
}

// IsNegative 是否为负
func (d *Decimal) IsNegative() bool {
	return d.value.Sign() < 0
}

// alignScale 对齐精度
func (d *Decimal) alignScale(other *Decimal) (*Decimal, *Decimal) {
	if d.scale == other.scale {
		return d, other
	}
	if d.scale > other.scale {
		return d, other.setScale(d.scale)
	}
	return d.setScale(other.scale), other
}

// setScale 设置精度（只升不降，金额不截断）
func (d *Decimal) setScale(scale int) *Decimal {
	if scale <= d.scale {
		return d
	}
	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale-d.scale)), nil)
	result := new(big.Int).Mul(d.value, multiplier)
	return &Decimal{value: result, scale: scale}
}
